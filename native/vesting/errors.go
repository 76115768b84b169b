package vesting

import "errors"

var (
	// Validation failures, rejected before any state change.
	ErrNoBeneficiaries      = errors.New("vesting: no beneficiaries provided")
	ErrTooManyBeneficiaries = errors.New("vesting: too many beneficiaries")
	ErrInvalidAmount        = errors.New("vesting: amount must be positive")
	ErrInvalidDecimals      = errors.New("vesting: invalid decimals")
	ErrInvalidCliffPeriod   = errors.New("vesting: cliff must be shorter than total vesting period")
	ErrInvalidVestingConfig = errors.New("vesting: total months not divisible by cliff months")
	ErrInvalidAllocation    = errors.New("vesting: invalid allocation")
	ErrInvalidStartTime     = errors.New("vesting: start time is in the past")
	ErrStartTimeTooFar      = errors.New("vesting: start time is too far in the future")
	ErrDuplicateBeneficiary = errors.New("vesting: duplicate beneficiary")
	ErrOverAllocation       = errors.New("vesting: allocations exceed total amount")

	// Authorization failures.
	ErrUnauthorizedAdmin = errors.New("vesting: only admin can perform this action")
	ErrSameAdmin         = errors.New("vesting: new admin equals current admin")
	ErrInvalidAddress    = errors.New("vesting: invalid address")

	// Temporal failures.
	ErrCliffNotReached   = errors.New("vesting: cliff period has not been reached")
	ErrClaimNotAllowed   = errors.New("vesting: nothing claimable currently")
	ErrNoUnclaimedTokens = errors.New("vesting: no unclaimed tokens available")

	// Resource and arithmetic failures.
	ErrInsufficientBalance = errors.New("vesting: insufficient escrow balance")
	ErrMathOverflow        = errors.New("vesting: math overflow")

	// Ledger lookup failures.
	ErrNotFound            = errors.New("vesting: schedule not found")
	ErrAlreadyInitialized  = errors.New("vesting: schedule already initialized")
	ErrBeneficiaryNotFound = errors.New("vesting: beneficiary does not exist in schedule")
)
