package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vestchain/storage"
)

var (
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	ErrBalanceOverflow     = errors.New("state: balance overflow")
)

var balancePrefix = []byte("vesting-balance")

// Manager persists vesting ledger records and token balances on top of a
// generic key-value database. It implements both the engine's State interface
// and its Custodian interface: escrow sub-accounts are ordinary balance slots
// keyed by their derived 32-byte identifiers.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func balanceKey(token string, owner []byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(token)+len(owner))
	buf = append(buf, balancePrefix...)
	buf = append(buf, token...)
	buf = append(buf, owner...)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) loadBalance(key []byte) (uint64, error) {
	ok, err := m.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: malformed balance record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (m *Manager) writeBalance(key []byte, amount uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, amount)
	return m.db.Put(key, buf)
}

// AccountBalance returns the free balance of an account for a token.
func (m *Manager) AccountBalance(addr [20]byte, token string) (uint64, error) {
	return m.loadBalance(balanceKey(token, addr[:]))
}

// EnsureGenesisBalance seeds an account balance exactly once; an existing
// record, including a zero one, is left untouched.
func (m *Manager) EnsureGenesisBalance(addr [20]byte, token string, amount uint64) error {
	key := balanceKey(token, addr[:])
	ok, err := m.db.Has(key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return m.writeBalance(key, amount)
}

// BalanceOf reports the escrowed balance backing a schedule. It satisfies the
// custodian interface consumed by the vesting engine.
func (m *Manager) BalanceOf(escrow [32]byte, token string) (uint64, error) {
	return m.loadBalance(balanceKey(token, escrow[:]))
}

// Deposit moves tokens from an account into an escrow sub-account. On any
// partial failure the already-applied half is restored before returning.
func (m *Manager) Deposit(from [20]byte, escrow [32]byte, token string, amount uint64) error {
	return m.move(balanceKey(token, from[:]), balanceKey(token, escrow[:]), amount)
}

// Transfer moves tokens out of an escrow sub-account to an account.
func (m *Manager) Transfer(escrow [32]byte, to [20]byte, token string, amount uint64) error {
	return m.move(balanceKey(token, escrow[:]), balanceKey(token, to[:]), amount)
}

func (m *Manager) move(fromKey, toKey []byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBal, err := m.loadBalance(fromKey)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientBalance
	}
	toBal, err := m.loadBalance(toKey)
	if err != nil {
		return err
	}
	newTo := toBal + amount
	if newTo < toBal {
		return ErrBalanceOverflow
	}
	if err := m.writeBalance(fromKey, fromBal-amount); err != nil {
		return err
	}
	if err := m.writeBalance(toKey, newTo); err != nil {
		if restoreErr := m.writeBalance(fromKey, fromBal); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback sender balance: %w", restoreErr))
		}
		return err
	}
	return nil
}
