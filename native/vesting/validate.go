package vesting

// ValidateBeneficiaries checks a proposed beneficiary set against the
// aggregate amount before a schedule is committed. Checks run in a fixed
// order and the first violated rule is returned; the function has no side
// effects.
func ValidateBeneficiaries(beneficiaries []Beneficiary, totalAmount uint64, decimals uint8, now int64) error {
	if len(beneficiaries) == 0 {
		return ErrNoBeneficiaries
	}
	if len(beneficiaries) > MaxBeneficiaries {
		return ErrTooManyBeneficiaries
	}
	if totalAmount == 0 {
		return ErrInvalidAmount
	}
	if decimals > MaxDecimals {
		return ErrInvalidDecimals
	}
	for i := range beneficiaries {
		if err := validateBeneficiary(&beneficiaries[i], now); err != nil {
			return err
		}
	}
	seen := make(map[[20]byte]struct{}, len(beneficiaries))
	for i := range beneficiaries {
		addr := beneficiaries[i].Addr
		if _, dup := seen[addr]; dup {
			return ErrDuplicateBeneficiary
		}
		seen[addr] = struct{}{}
	}
	var sum uint64
	for i := range beneficiaries {
		next, ok := checkedAdd(sum, beneficiaries[i].Allocated)
		if !ok {
			return ErrMathOverflow
		}
		sum = next
	}
	if sum > totalAmount {
		return ErrOverAllocation
	}
	return nil
}

func validateBeneficiary(b *Beneficiary, now int64) error {
	if b.TotalMonths < 1 {
		return ErrInvalidCliffPeriod
	}
	if int(b.CliffMonths) > MaxCliffMonths {
		return ErrInvalidCliffPeriod
	}
	if b.CliffMonths >= b.TotalMonths {
		return ErrInvalidCliffPeriod
	}
	if b.Allocated == 0 {
		return ErrInvalidAllocation
	}
	if b.StartTime < now {
		return ErrInvalidStartTime
	}
	if b.StartTime > now+MaxStartDelay {
		return ErrStartTimeTooFar
	}
	if b.CliffMonths > 0 && b.TotalMonths%b.CliffMonths != 0 {
		return ErrInvalidVestingConfig
	}
	return nil
}
