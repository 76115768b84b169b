package vesting

import (
	"errors"
	"time"

	"vestchain/core/events"
)

var (
	errNilState     = errors.New("vesting engine: state not configured")
	errNilCustodian = errors.New("vesting engine: custodian not configured")
)

// State is the ledger backend consumed by the engine. Mutations are
// transactional from the engine's perspective: each call either commits fully
// or leaves the record untouched. VestingGet reports an absent record as
// ErrNotFound; any other error means the record exists but cannot be read,
// and the engine refuses to act on it.
type State interface {
	VestingGet(id [32]byte) (*Schedule, error)
	VestingPut(*Schedule) error
	VestingSetClaimed(id [32]byte, addr [20]byte, newClaimed uint64) error
	VestingSetAuthority(id [32]byte, authority [20]byte) error
}

// Custodian holds the escrowed balances backing each schedule. The engine
// never moves assets itself; it decides amounts and requests transfers, and
// always observes BalanceOf before requesting a transfer it could not honour.
type Custodian interface {
	BalanceOf(escrow [32]byte, token string) (uint64, error)
	Deposit(from [20]byte, escrow [32]byte, token string, amount uint64) error
	Transfer(escrow [32]byte, to [20]byte, token string, amount uint64) error
}

// Engine wires the vesting business logic with external state, custody and
// event emission. Each operation samples the clock once and executes as an
// indivisible unit against a single schedule; the surrounding environment is
// responsible for serialising concurrent operations on the same schedule.
type Engine struct {
	state     State
	custodian Custodian
	emitter   events.Emitter
	nowFn     func() int64
}

// NewEngine creates a vesting engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetCustodian configures the custody backend used by the engine.
func (e *Engine) SetCustodian(custodian Custodian) { e.custodian = custodian }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custodian == nil {
		return errNilCustodian
	}
	return nil
}

func (e *Engine) loadSchedule(token string) (*Schedule, string, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, "", err
	}
	sched, err := e.state.VestingGet(DeriveLedgerID(normalized))
	if err != nil {
		return nil, "", err
	}
	return sched, normalized, nil
}

// Initialize validates and persists a new vesting schedule, funding the
// escrow sub-account from the creator's balance in the same transition. The
// creator becomes the schedule authority. A record that already carries an
// authority cannot be re-initialized; a record with the zero authority is
// treated as absent and adopted by the caller.
func (e *Engine) Initialize(caller [20]byte, token string, beneficiaries []Beneficiary, totalAmount uint64, decimals uint8) (*Schedule, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	ledgerID := DeriveLedgerID(normalized)
	escrowID := DeriveEscrowID(normalized)
	existing, err := e.state.VestingGet(ledgerID)
	switch {
	case err == nil:
		if existing.Authority != ([20]byte{}) {
			return nil, ErrAlreadyInitialized
		}
	case errors.Is(err, ErrNotFound):
		// No record yet; the caller adopts the slot.
	default:
		// An unreadable record must not look like a free slot, or the escrow
		// would be funded a second time.
		return nil, err
	}
	now := e.now()
	if err := ValidateBeneficiaries(beneficiaries, totalAmount, decimals, now); err != nil {
		return nil, err
	}
	entries := make([]Beneficiary, len(beneficiaries))
	copy(entries, beneficiaries)
	for i := range entries {
		entries[i].Claimed = 0
	}
	sched := &Schedule{
		ID:            ledgerID,
		Authority:     caller,
		Token:         normalized,
		EscrowID:      escrowID,
		Decimals:      decimals,
		TotalAmount:   totalAmount,
		Beneficiaries: entries,
	}
	if err := e.custodian.Deposit(caller, escrowID, normalized, totalAmount); err != nil {
		return nil, err
	}
	if err := e.state.VestingPut(sched); err != nil {
		_ = e.custodian.Transfer(escrowID, caller, normalized, totalAmount)
		return nil, err
	}
	e.emit(events.ScheduleInitialized{
		Admin:            caller,
		Token:            normalized,
		TotalAmount:      totalAmount,
		BeneficiaryCount: uint32(len(entries)),
	})
	return sched.Clone(), nil
}

// Claim pays out the caller's newly unlocked tokens from the escrow. The
// ledger update and the custodian transfer commit together; if either fails
// the whole operation rolls back with no visible mutation.
func (e *Engine) Claim(caller [20]byte, token string) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	sched, normalized, err := e.loadSchedule(token)
	if err != nil {
		return 0, err
	}
	idx := sched.beneficiaryIndex(caller)
	if idx < 0 {
		return 0, ErrBeneficiaryNotFound
	}
	entry := sched.Beneficiaries[idx]
	now := e.now()
	claimable, err := ClaimableAt(&entry, now)
	if err != nil {
		return 0, err
	}
	newClaimed, ok := checkedAdd(entry.Claimed, claimable)
	if !ok {
		return 0, ErrMathOverflow
	}
	balance, err := e.custodian.BalanceOf(sched.EscrowID, normalized)
	if err != nil {
		return 0, err
	}
	if balance < claimable {
		return 0, ErrInsufficientBalance
	}
	if err := e.custodian.Transfer(sched.EscrowID, caller, normalized, claimable); err != nil {
		return 0, err
	}
	if err := e.state.VestingSetClaimed(sched.ID, caller, newClaimed); err != nil {
		_ = e.custodian.Deposit(caller, sched.EscrowID, normalized, claimable)
		return 0, err
	}
	e.emit(events.TokensClaimed{
		Beneficiary: caller,
		Token:       normalized,
		Amount:      claimable,
		Timestamp:   now,
	})
	return claimable, nil
}

// WithdrawUnclaimed sweeps every beneficiary whose grace period has elapsed
// and pays the aggregate unclaimed remainder to the admin. Swept
// beneficiaries are marked fully claimed and can no longer claim; all
// per-beneficiary updates commit atomically with the transfer.
func (e *Engine) WithdrawUnclaimed(caller [20]byte, token string) (uint64, uint32, error) {
	if err := e.ready(); err != nil {
		return 0, 0, err
	}
	sched, normalized, err := e.loadSchedule(token)
	if err != nil {
		return 0, 0, err
	}
	if sched.Authority != caller {
		return 0, 0, ErrUnauthorizedAdmin
	}
	now := e.now()
	updated := sched.Clone()
	var totalUnclaimed uint64
	var processed uint32
	for i := range updated.Beneficiaries {
		unclaimed := unclaimedAt(&updated.Beneficiaries[i], now)
		if unclaimed == 0 {
			continue
		}
		next, ok := checkedAdd(totalUnclaimed, unclaimed)
		if !ok {
			return 0, 0, ErrMathOverflow
		}
		totalUnclaimed = next
		updated.Beneficiaries[i].Claimed = updated.Beneficiaries[i].Allocated
		processed++
	}
	if totalUnclaimed == 0 {
		return 0, 0, ErrNoUnclaimedTokens
	}
	balance, err := e.custodian.BalanceOf(updated.EscrowID, normalized)
	if err != nil {
		return 0, 0, err
	}
	if balance < totalUnclaimed {
		return 0, 0, ErrInsufficientBalance
	}
	if err := e.custodian.Transfer(updated.EscrowID, caller, normalized, totalUnclaimed); err != nil {
		return 0, 0, err
	}
	if err := e.state.VestingPut(updated); err != nil {
		_ = e.custodian.Deposit(caller, updated.EscrowID, normalized, totalUnclaimed)
		return 0, 0, err
	}
	e.emit(events.UnclaimedWithdrawn{
		Admin:          caller,
		Token:          normalized,
		TotalAmount:    totalUnclaimed,
		ProcessedCount: processed,
		Timestamp:      now,
	})
	return totalUnclaimed, processed, nil
}

// ChangeAdmin rotates the schedule authority. The role transfers exactly to
// the supplied address; rotating to the current admin or to the zero address
// is rejected.
func (e *Engine) ChangeAdmin(caller [20]byte, token string, newAdmin [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	sched, normalized, err := e.loadSchedule(token)
	if err != nil {
		return err
	}
	if sched.Authority != caller {
		return ErrUnauthorizedAdmin
	}
	if newAdmin == sched.Authority {
		return ErrSameAdmin
	}
	if newAdmin == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if err := e.state.VestingSetAuthority(sched.ID, newAdmin); err != nil {
		return err
	}
	e.emit(events.AdminChanged{
		Token:     normalized,
		OldAdmin:  sched.Authority,
		NewAdmin:  newAdmin,
		Timestamp: e.now(),
	})
	return nil
}

// Schedule returns a copy of the stored schedule for a token.
func (e *Engine) Schedule(token string) (*Schedule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sched, _, err := e.loadSchedule(token)
	if err != nil {
		return nil, err
	}
	return sched.Clone(), nil
}
