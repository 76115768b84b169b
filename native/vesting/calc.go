package vesting

import "math/big"

// monthsElapsed counts whole vesting months between start and now. Instants
// before the start count as zero.
func monthsElapsed(start, now int64) uint64 {
	if now < start {
		return 0
	}
	return uint64((now - start) / SecondsPerMonth)
}

// ClaimableAt computes the amount newly unlockable for one beneficiary at the
// given instant. The calculation is deterministic integer arithmetic: the
// allocation unlocks in discrete month-steps linearly over the vesting span,
// with a 128-bit-wide intermediate so allocated*months never overflows.
//
// It returns ErrCliffNotReached before the cliff and ErrClaimNotAllowed when
// nothing new has vested since the last claim; neither outcome mutates state.
func ClaimableAt(b *Beneficiary, now int64) (uint64, error) {
	if b == nil {
		return 0, ErrInvalidVestingConfig
	}
	cliff := uint64(b.CliffMonths)
	total := uint64(b.TotalMonths)
	if total <= cliff {
		return 0, ErrInvalidVestingConfig
	}
	span := total - cliff

	elapsed := monthsElapsed(b.StartTime, now)
	if elapsed < cliff {
		return 0, ErrCliffNotReached
	}
	vested := elapsed - cliff
	if vested > span {
		vested = span
	}

	var unlocked uint64
	if vested >= span {
		// Full vesting pays the allocation exactly, with no rounding loss.
		unlocked = b.Allocated
	} else {
		product := new(big.Int).Mul(
			new(big.Int).SetUint64(b.Allocated),
			new(big.Int).SetUint64(vested),
		)
		product.Quo(product, new(big.Int).SetUint64(span))
		if !product.IsUint64() {
			return 0, ErrMathOverflow
		}
		unlocked = product.Uint64()
	}

	// Saturating subtraction: a claimed amount above the unlocked portion
	// yields zero, never wraps.
	if unlocked <= b.Claimed {
		return 0, ErrClaimNotAllowed
	}
	return unlocked - b.Claimed, nil
}

// unclaimedAt returns the sweepable remainder for one beneficiary, or zero if
// the grace period after full vesting has not elapsed.
func unclaimedAt(b *Beneficiary, now int64) uint64 {
	if b == nil {
		return 0
	}
	earliestWithdraw := b.VestingEnd() + GracePeriod
	if now <= earliestWithdraw {
		return 0
	}
	if b.Claimed >= b.Allocated {
		return 0
	}
	return b.Allocated - b.Claimed
}
