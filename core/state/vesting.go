package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vestchain/native/vesting"
)

var (
	ErrClaimedRegression = errors.New("state: claimed amount may not decrease")
	ErrClaimedExceedsCap = errors.New("state: claimed amount exceeds allocation")
)

var vestingRecordPrefix = []byte("vesting-schedule")

func vestingStorageKey(id [32]byte) []byte {
	buf := make([]byte, len(vestingRecordPrefix)+len(id))
	copy(buf, vestingRecordPrefix)
	copy(buf[len(vestingRecordPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

type storedBeneficiary struct {
	Addr        [20]byte
	Allocated   uint64
	Claimed     uint64
	StartTime   *big.Int
	CliffMonths uint8
	TotalMonths uint8
}

type storedSchedule struct {
	ID            [32]byte
	Authority     [20]byte
	Token         string
	EscrowID      [32]byte
	Decimals      uint8
	TotalAmount   uint64
	Beneficiaries []storedBeneficiary
}

func newStoredSchedule(s *vesting.Schedule) *storedSchedule {
	if s == nil {
		return nil
	}
	entries := make([]storedBeneficiary, len(s.Beneficiaries))
	for i, b := range s.Beneficiaries {
		entries[i] = storedBeneficiary{
			Addr:        b.Addr,
			Allocated:   b.Allocated,
			Claimed:     b.Claimed,
			StartTime:   big.NewInt(b.StartTime),
			CliffMonths: b.CliffMonths,
			TotalMonths: b.TotalMonths,
		}
	}
	return &storedSchedule{
		ID:            s.ID,
		Authority:     s.Authority,
		Token:         s.Token,
		EscrowID:      s.EscrowID,
		Decimals:      s.Decimals,
		TotalAmount:   s.TotalAmount,
		Beneficiaries: entries,
	}
}

func (s *storedSchedule) toSchedule() (*vesting.Schedule, error) {
	if s == nil {
		return nil, errors.New("state: nil schedule record")
	}
	entries := make([]vesting.Beneficiary, len(s.Beneficiaries))
	for i, b := range s.Beneficiaries {
		start := int64(0)
		if b.StartTime != nil {
			start = b.StartTime.Int64()
		}
		entries[i] = vesting.Beneficiary{
			Addr:        b.Addr,
			Allocated:   b.Allocated,
			Claimed:     b.Claimed,
			StartTime:   start,
			CliffMonths: b.CliffMonths,
			TotalMonths: b.TotalMonths,
		}
	}
	out := &vesting.Schedule{
		ID:            s.ID,
		Authority:     s.Authority,
		Token:         s.Token,
		EscrowID:      s.EscrowID,
		Decimals:      s.Decimals,
		TotalAmount:   s.TotalAmount,
		Beneficiaries: entries,
	}
	return vesting.SanitizeSchedule(out)
}

// VestingPut persists a full schedule record. The record is sanitized first so
// a structurally invalid schedule can never reach storage.
func (m *Manager) VestingPut(s *vesting.Schedule) error {
	sanitized, err := vesting.SanitizeSchedule(s)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredSchedule(sanitized))
	if err != nil {
		return err
	}
	return m.db.Put(vestingStorageKey(sanitized.ID), encoded)
}

// VestingGet loads the schedule stored under the derived ledger key. An
// absent record is reported as vesting.ErrNotFound; a record that exists but
// cannot be decoded or sanitized surfaces its own error so corruption is
// never mistaken for a free slot.
func (m *Manager) VestingGet(id [32]byte) (*vesting.Schedule, error) {
	key := vestingStorageKey(id)
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vesting.ErrNotFound
	}
	data, err := m.db.Get(key)
	if err != nil {
		return nil, err
	}
	stored := new(storedSchedule)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode vesting record: %w", err)
	}
	record, err := stored.toSchedule()
	if err != nil {
		return nil, fmt.Errorf("state: corrupt vesting record: %w", err)
	}
	return record, nil
}

// VestingSetClaimed advances one beneficiary's claimed amount. Claimed is
// monotonically non-decreasing and capped by the allocation; violating writes
// are rejected with the record untouched.
func (m *Manager) VestingSetClaimed(id [32]byte, addr [20]byte, newClaimed uint64) error {
	record, err := m.VestingGet(id)
	if err != nil {
		return err
	}
	found := false
	for i := range record.Beneficiaries {
		if record.Beneficiaries[i].Addr != addr {
			continue
		}
		if newClaimed < record.Beneficiaries[i].Claimed {
			return ErrClaimedRegression
		}
		if newClaimed > record.Beneficiaries[i].Allocated {
			return ErrClaimedExceedsCap
		}
		record.Beneficiaries[i].Claimed = newClaimed
		found = true
		break
	}
	if !found {
		return vesting.ErrBeneficiaryNotFound
	}
	return m.VestingPut(record)
}

// VestingSetAuthority rotates the stored schedule authority.
func (m *Manager) VestingSetAuthority(id [32]byte, authority [20]byte) error {
	if authority == ([20]byte{}) {
		return vesting.ErrInvalidAddress
	}
	record, err := m.VestingGet(id)
	if err != nil {
		return err
	}
	record.Authority = authority
	return m.VestingPut(record)
}
