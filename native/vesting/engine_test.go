package vesting

import (
	"errors"
	"fmt"
	"testing"

	"vestchain/core/events"
)

type mockState struct {
	schedules      map[[32]byte]*Schedule
	failGet        error
	failPut        bool
	failSetClaimed bool
}

func newMockState() *mockState {
	return &mockState{schedules: make(map[[32]byte]*Schedule)}
}

func (m *mockState) VestingGet(id [32]byte) (*Schedule, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	sched, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sched.Clone(), nil
}

func (m *mockState) VestingPut(s *Schedule) error {
	if m.failPut {
		return fmt.Errorf("mock state: put failed")
	}
	sanitized, err := SanitizeSchedule(s)
	if err != nil {
		return err
	}
	m.schedules[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) VestingSetClaimed(id [32]byte, addr [20]byte, newClaimed uint64) error {
	if m.failSetClaimed {
		return fmt.Errorf("mock state: set claimed failed")
	}
	sched, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	for i := range sched.Beneficiaries {
		if sched.Beneficiaries[i].Addr != addr {
			continue
		}
		if newClaimed < sched.Beneficiaries[i].Claimed {
			return fmt.Errorf("mock state: claimed regression")
		}
		if newClaimed > sched.Beneficiaries[i].Allocated {
			return fmt.Errorf("mock state: claimed above allocation")
		}
		sched.Beneficiaries[i].Claimed = newClaimed
		return nil
	}
	return ErrBeneficiaryNotFound
}

func (m *mockState) VestingSetAuthority(id [32]byte, authority [20]byte) error {
	sched, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	sched.Authority = authority
	return nil
}

var errMockInsufficientFunds = errors.New("mock custodian: insufficient funds")

type mockCustodian struct {
	accounts     map[[20]byte]uint64
	escrows      map[[32]byte]uint64
	failTransfer bool
}

func newMockCustodian() *mockCustodian {
	return &mockCustodian{
		accounts: make(map[[20]byte]uint64),
		escrows:  make(map[[32]byte]uint64),
	}
}

func (c *mockCustodian) BalanceOf(escrow [32]byte, _ string) (uint64, error) {
	return c.escrows[escrow], nil
}

func (c *mockCustodian) Deposit(from [20]byte, escrow [32]byte, _ string, amount uint64) error {
	if c.accounts[from] < amount {
		return errMockInsufficientFunds
	}
	c.accounts[from] -= amount
	c.escrows[escrow] += amount
	return nil
}

func (c *mockCustodian) Transfer(escrow [32]byte, to [20]byte, _ string, amount uint64) error {
	if c.failTransfer {
		return fmt.Errorf("mock custodian: transfer failed")
	}
	if c.escrows[escrow] < amount {
		return errMockInsufficientFunds
	}
	c.escrows[escrow] -= amount
	c.accounts[to] += amount
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) lastType() string {
	if len(c.events) == 0 {
		return ""
	}
	return c.events[len(c.events)-1].EventType()
}

const testToken = "VST"

func newTestEngine(state *mockState, custodian *mockCustodian) (*Engine, *capturingEmitter) {
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetCustodian(custodian)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return t0 })
	return engine, emitter
}

func fundedAdmin(custodian *mockCustodian, amount uint64) [20]byte {
	admin := testAddr(0xAD)
	custodian.accounts[admin] = amount
	return admin
}

func initializeSchedule(t *testing.T, engine *Engine, custodian *mockCustodian, beneficiaries []Beneficiary, total uint64) [20]byte {
	t.Helper()
	admin := fundedAdmin(custodian, total)
	if _, err := engine.Initialize(admin, testToken, beneficiaries, total, 6); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return admin
}

func TestInitializePersistsAndFundsEscrow(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	admin := fundedAdmin(custodian, 2_000_000)

	beneficiaries := []Beneficiary{
		{Addr: testAddr(1), Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
		{Addr: testAddr(2), Allocated: 600_000, StartTime: t0, CliffMonths: 0, TotalMonths: 6},
	}
	sched, err := engine.Initialize(admin, " vst ", beneficiaries, 2_000_000, 6)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if sched.Token != testToken {
		t.Fatalf("expected canonical token, got %q", sched.Token)
	}
	if sched.Authority != admin {
		t.Fatalf("authority must be the creator")
	}
	if custodian.escrows[sched.EscrowID] != 2_000_000 {
		t.Fatalf("escrow not funded: %d", custodian.escrows[sched.EscrowID])
	}
	if custodian.accounts[admin] != 0 {
		t.Fatalf("admin balance not debited: %d", custodian.accounts[admin])
	}
	stored, err := state.VestingGet(DeriveLedgerID(testToken))
	if err != nil {
		t.Fatalf("schedule not stored: %v", err)
	}
	for i := range stored.Beneficiaries {
		if stored.Beneficiaries[i].Claimed != 0 {
			t.Fatalf("claimed must start at zero")
		}
	}
	if emitter.lastType() != events.TypeScheduleInitialized {
		t.Fatalf("expected initialized event, got %q", emitter.lastType())
	}
}

func TestInitializeRejectsExistingSchedule(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiaries := []Beneficiary{validBeneficiary(1)}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_000)

	admin2 := testAddr(0xAE)
	custodian.accounts[admin2] = 1_000
	if _, err := engine.Initialize(admin2, testToken, beneficiaries, 1_000, 6); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestInitializeValidatorRejectionLeavesNoState(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	admin := fundedAdmin(custodian, 1_000)

	duplicates := []Beneficiary{validBeneficiary(1), validBeneficiary(1)}
	if _, err := engine.Initialize(admin, testToken, duplicates, 1_000, 6); !errors.Is(err, ErrDuplicateBeneficiary) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := state.VestingGet(DeriveLedgerID(testToken)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no schedule may be created on rejection, got %v", err)
	}
	if custodian.accounts[admin] != 1_000 {
		t.Fatalf("funder balance must be untouched")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("no events may be emitted on rejection")
	}
}

func TestInitializeRollsBackFundingOnPutFailure(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	admin := fundedAdmin(custodian, 1_000)
	state.failPut = true

	if _, err := engine.Initialize(admin, testToken, []Beneficiary{validBeneficiary(1)}, 1_000, 6); err == nil {
		t.Fatalf("expected put failure")
	}
	if custodian.accounts[admin] != 1_000 {
		t.Fatalf("escrow funding must be unwound, admin has %d", custodian.accounts[admin])
	}
	if custodian.escrows[DeriveEscrowID(testToken)] != 0 {
		t.Fatalf("escrow must be empty after rollback")
	}
}

func TestInitializeRefusesUnreadableRecord(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	admin := fundedAdmin(custodian, 1_000)
	state.failGet = fmt.Errorf("mock state: unreadable record")

	_, err := engine.Initialize(admin, testToken, []Beneficiary{validBeneficiary(1)}, 1_000, 6)
	if !errors.Is(err, state.failGet) {
		t.Fatalf("read failure must surface, got %v", err)
	}
	if custodian.accounts[admin] != 1_000 {
		t.Fatalf("no funding may happen when the record cannot be read, admin has %d", custodian.accounts[admin])
	}
	if len(emitter.events) != 0 {
		t.Fatalf("no events may be emitted when the record cannot be read")
	}
}

func TestClaimBeforeCliffFails(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiaries := []Beneficiary{
		{Addr: testAddr(1), Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	engine.SetNowFunc(func() int64 { return t0 + 3*SecondsPerMonth - 1 })
	if _, err := engine.Claim(testAddr(1), testToken); !errors.Is(err, ErrCliffNotReached) {
		t.Fatalf("expected cliff error, got %v", err)
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != 0 {
		t.Fatalf("claimed must not move on failure")
	}
}

func TestClaimPaysOutAndAdvancesClaimed(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	beneficiary := testAddr(1)
	beneficiaries := []Beneficiary{
		{Addr: beneficiary, Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	engine.SetNowFunc(func() int64 { return t0 + 4*SecondsPerMonth })
	amount, err := engine.Claim(beneficiary, testToken)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount != 133_333 {
		t.Fatalf("expected 133333, got %d", amount)
	}
	if custodian.accounts[beneficiary] != 133_333 {
		t.Fatalf("beneficiary not paid: %d", custodian.accounts[beneficiary])
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != 133_333 {
		t.Fatalf("claimed not advanced: %d", stored.Beneficiaries[0].Claimed)
	}
	if emitter.lastType() != events.TypeTokensClaimed {
		t.Fatalf("expected claim event, got %q", emitter.lastType())
	}

	// Claiming again in the same month has nothing new to unlock.
	if _, err := engine.Claim(beneficiary, testToken); !errors.Is(err, ErrClaimNotAllowed) {
		t.Fatalf("expected nothing claimable, got %v", err)
	}
}

func TestClaimedIsMonotonicAcrossClaims(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiary := testAddr(1)
	beneficiaries := []Beneficiary{
		{Addr: beneficiary, Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	var prev uint64
	for month := int64(4); month <= 16; month++ {
		now := t0 + month*SecondsPerMonth
		engine.SetNowFunc(func() int64 { return now })
		if _, err := engine.Claim(beneficiary, testToken); err != nil && !errors.Is(err, ErrClaimNotAllowed) {
			t.Fatalf("month %d: %v", month, err)
		}
		stored, _ := state.VestingGet(DeriveLedgerID(testToken))
		claimed := stored.Beneficiaries[0].Claimed
		if claimed < prev {
			t.Fatalf("claimed regressed: %d -> %d", prev, claimed)
		}
		if claimed > 1_200_000 {
			t.Fatalf("claimed exceeds allocation: %d", claimed)
		}
		prev = claimed
	}
	if prev != 1_200_000 {
		t.Fatalf("fully vested beneficiary must reach allocation, got %d", prev)
	}
}

func TestClaimUnknownBeneficiary(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	initializeSchedule(t, engine, custodian, []Beneficiary{validBeneficiary(1)}, 1_000)

	engine.SetNowFunc(func() int64 { return t0 + 5*SecondsPerMonth })
	if _, err := engine.Claim(testAddr(9), testToken); !errors.Is(err, ErrBeneficiaryNotFound) {
		t.Fatalf("expected beneficiary not found, got %v", err)
	}
}

func TestClaimInsufficientEscrowBalance(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiary := testAddr(1)
	beneficiaries := []Beneficiary{
		{Addr: beneficiary, Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	// Drain the escrow behind the ledger's back.
	custodian.escrows[DeriveEscrowID(testToken)] = 0

	engine.SetNowFunc(func() int64 { return t0 + 4*SecondsPerMonth })
	if _, err := engine.Claim(beneficiary, testToken); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != 0 {
		t.Fatalf("claimed must not move when transfer cannot be honoured")
	}
}

func TestClaimRollsBackTransferOnLedgerFailure(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	beneficiary := testAddr(1)
	beneficiaries := []Beneficiary{
		{Addr: beneficiary, Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)
	state.failSetClaimed = true

	engine.SetNowFunc(func() int64 { return t0 + 4*SecondsPerMonth })
	if _, err := engine.Claim(beneficiary, testToken); err == nil {
		t.Fatalf("expected ledger failure")
	}
	if custodian.accounts[beneficiary] != 0 {
		t.Fatalf("payout must be unwound, beneficiary has %d", custodian.accounts[beneficiary])
	}
	if custodian.escrows[DeriveEscrowID(testToken)] != 1_200_000 {
		t.Fatalf("escrow must be restored")
	}
	if emitter.lastType() == events.TypeTokensClaimed {
		t.Fatalf("no claim event may be emitted on rollback")
	}
}

func TestWithdrawUnclaimedSweepsExpiredBeneficiaries(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	expired := testAddr(1)
	active := testAddr(2)
	beneficiaries := []Beneficiary{
		{Addr: expired, Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
		// Starts eleven months later, so its grace window is still open.
		{Addr: active, Allocated: 500_000, StartTime: t0 + 11*SecondsPerMonth, CliffMonths: 0, TotalMonths: 12},
	}
	admin := initializeSchedule(t, engine, custodian, beneficiaries, 1_700_000)

	// Scenario: sweep one second past vesting end + grace period.
	engine.SetNowFunc(func() int64 { return t0 + 12*SecondsPerMonth + GracePeriod + 1 })
	total, processed, err := engine.WithdrawUnclaimed(admin, testToken)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if total != 1_200_000 {
		t.Fatalf("expected 1200000 swept, got %d", total)
	}
	if processed != 1 {
		t.Fatalf("expected one beneficiary processed, got %d", processed)
	}
	if custodian.accounts[admin] != 1_200_000 {
		t.Fatalf("admin not paid: %d", custodian.accounts[admin])
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != stored.Beneficiaries[0].Allocated {
		t.Fatalf("swept beneficiary must be marked fully claimed")
	}
	if stored.Beneficiaries[1].Claimed != 0 {
		t.Fatalf("active beneficiary must be untouched")
	}
	if emitter.lastType() != events.TypeUnclaimedWithdrawn {
		t.Fatalf("expected withdrawn event, got %q", emitter.lastType())
	}

	// The swept beneficiary can no longer claim anything.
	if _, err := engine.Claim(expired, testToken); !errors.Is(err, ErrClaimNotAllowed) {
		t.Fatalf("expected swept beneficiary locked out, got %v", err)
	}
}

func TestWithdrawUnclaimedRequiresAdmin(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	initializeSchedule(t, engine, custodian, []Beneficiary{validBeneficiary(1)}, 1_000)

	engine.SetNowFunc(func() int64 { return t0 + 100*SecondsPerMonth })
	if _, _, err := engine.WithdrawUnclaimed(testAddr(0x99), testToken); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWithdrawUnclaimedNothingToSweep(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiaries := []Beneficiary{
		{Addr: testAddr(1), Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	admin := initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	// Exactly at the boundary the grace period has not elapsed yet.
	engine.SetNowFunc(func() int64 { return t0 + 12*SecondsPerMonth + GracePeriod })
	if _, _, err := engine.WithdrawUnclaimed(admin, testToken); !errors.Is(err, ErrNoUnclaimedTokens) {
		t.Fatalf("expected no unclaimed tokens, got %v", err)
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != 0 {
		t.Fatalf("failed sweep must not mutate the ledger")
	}
}

func TestWithdrawUnclaimedRollsBackOnLedgerFailure(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, _ := newTestEngine(state, custodian)
	beneficiaries := []Beneficiary{
		{Addr: testAddr(1), Allocated: 1_200_000, StartTime: t0, CliffMonths: 3, TotalMonths: 12},
	}
	admin := initializeSchedule(t, engine, custodian, beneficiaries, 1_200_000)

	engine.SetNowFunc(func() int64 { return t0 + 12*SecondsPerMonth + GracePeriod + 1 })
	state.failPut = true
	if _, _, err := engine.WithdrawUnclaimed(admin, testToken); err == nil {
		t.Fatalf("expected ledger failure")
	}
	if custodian.escrows[DeriveEscrowID(testToken)] != 1_200_000 {
		t.Fatalf("escrow must be restored after rollback")
	}
	state.failPut = false
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Beneficiaries[0].Claimed != 0 {
		t.Fatalf("ledger must be unchanged after rollback")
	}
}

func TestChangeAdminRules(t *testing.T) {
	state := newMockState()
	custodian := newMockCustodian()
	engine, emitter := newTestEngine(state, custodian)
	admin := initializeSchedule(t, engine, custodian, []Beneficiary{validBeneficiary(1)}, 1_000)
	next := testAddr(0xBE)

	if err := engine.ChangeAdmin(testAddr(0x99), testToken, next); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.ChangeAdmin(admin, testToken, admin); !errors.Is(err, ErrSameAdmin) {
		t.Fatalf("expected same admin rejection, got %v", err)
	}
	if err := engine.ChangeAdmin(admin, testToken, [20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address rejection, got %v", err)
	}
	if err := engine.ChangeAdmin(admin, testToken, next); err != nil {
		t.Fatalf("change admin: %v", err)
	}
	stored, _ := state.VestingGet(DeriveLedgerID(testToken))
	if stored.Authority != next {
		t.Fatalf("authority not rotated")
	}
	if emitter.lastType() != events.TypeAdminChanged {
		t.Fatalf("expected admin changed event, got %q", emitter.lastType())
	}

	// The old admin lost the role with the rotation.
	if err := engine.ChangeAdmin(admin, testToken, testAddr(0xCF)); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected old admin locked out, got %v", err)
	}
}

func TestEngineRequiresConfiguration(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Initialize(testAddr(1), testToken, nil, 1, 0); err == nil {
		t.Fatalf("expected unconfigured engine to fail")
	}
	engine.SetState(newMockState())
	if _, err := engine.Claim(testAddr(1), testToken); err == nil {
		t.Fatalf("expected missing custodian to fail")
	}
}
