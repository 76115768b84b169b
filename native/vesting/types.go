package vesting

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxBeneficiaries bounds the beneficiary set of a single schedule. The
	// persisted record is sized for this count at creation and never grows.
	MaxBeneficiaries = 50
	// MaxCliffMonths bounds the cliff period of a single beneficiary.
	MaxCliffMonths = 48
	// MaxDecimals bounds the informational decimals field; all arithmetic is
	// performed in raw units regardless of this value.
	MaxDecimals = 9
	// SecondsPerMonth is the fixed month length used for all vesting math
	// (30.44-day average).
	SecondsPerMonth int64 = 2_629_776
	// GracePeriod is the waiting time after full vesting before the admin may
	// reclaim unclaimed funds.
	GracePeriod int64 = 6 * SecondsPerMonth
	// MaxStartDelay is how far in the future a beneficiary start time may lie.
	MaxStartDelay int64 = 365 * 24 * 60 * 60
)

// Beneficiary captures one beneficiary's vesting terms. Allocated and Claimed
// are raw smallest-unit amounts; Claimed only ever moves towards Allocated.
type Beneficiary struct {
	Addr        [20]byte
	Allocated   uint64
	Claimed     uint64
	StartTime   int64
	CliffMonths uint8
	TotalMonths uint8
}

// VestingEnd returns the instant at which the beneficiary is fully vested.
func (b *Beneficiary) VestingEnd() int64 {
	if b == nil {
		return 0
	}
	return b.StartTime + int64(b.TotalMonths)*SecondsPerMonth
}

// Schedule is the persistent vesting record for one (admin, token) escrow.
// Beneficiary membership is fixed at creation; only Claimed mutates afterwards.
type Schedule struct {
	ID            [32]byte
	Authority     [20]byte
	Token         string
	EscrowID      [32]byte
	Decimals      uint8
	TotalAmount   uint64
	Beneficiaries []Beneficiary
}

// Clone returns a deep copy of the schedule so callers can safely mutate the
// copy without affecting the stored instance.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Beneficiaries = append([]Beneficiary(nil), s.Beneficiaries...)
	return &clone
}

// Beneficiary returns the index of the entry owned by addr, or -1.
func (s *Schedule) beneficiaryIndex(addr [20]byte) int {
	if s == nil {
		return -1
	}
	for i := range s.Beneficiaries {
		if s.Beneficiaries[i].Addr == addr {
			return i
		}
	}
	return -1
}

var tokenSymbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

// NormalizeToken canonicalises a token symbol to its uppercase form and
// rejects symbols outside the supported shape.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if !tokenSymbolPattern.MatchString(trimmed) {
		return "", fmt.Errorf("unsupported vesting token: %q", symbol)
	}
	return trimmed, nil
}

// SanitizeSchedule validates the structural invariants of a stored schedule
// and returns a cloned instance with canonical token casing. The function does
// not mutate the original value.
func SanitizeSchedule(s *Schedule) (*Schedule, error) {
	if s == nil {
		return nil, fmt.Errorf("nil schedule")
	}
	clone := s.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.Authority == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	if clone.TotalAmount == 0 {
		return nil, ErrInvalidAmount
	}
	if clone.Decimals > MaxDecimals {
		return nil, ErrInvalidDecimals
	}
	if len(clone.Beneficiaries) == 0 {
		return nil, ErrNoBeneficiaries
	}
	if len(clone.Beneficiaries) > MaxBeneficiaries {
		return nil, ErrTooManyBeneficiaries
	}
	var sum uint64
	for i := range clone.Beneficiaries {
		b := &clone.Beneficiaries[i]
		if b.TotalMonths == 0 || b.CliffMonths >= b.TotalMonths {
			return nil, ErrInvalidCliffPeriod
		}
		if b.Allocated == 0 {
			return nil, ErrInvalidAllocation
		}
		if b.Claimed > b.Allocated {
			return nil, ErrInvalidAllocation
		}
		next, ok := checkedAdd(sum, b.Allocated)
		if !ok {
			return nil, ErrMathOverflow
		}
		sum = next
	}
	if sum > clone.TotalAmount {
		return nil, ErrOverAllocation
	}
	return clone, nil
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
