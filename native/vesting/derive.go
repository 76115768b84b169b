package vesting

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

const (
	ledgerSeed = "vesting/ledger"
	escrowSeed = "vesting/escrow"
)

// DeriveLedgerID returns the deterministic ledger key for a token. Callers are
// never allowed to supply this key; the engine recomputes it from the seed so
// an attacker cannot point an operation at an arbitrary record.
func DeriveLedgerID(token string) [32]byte {
	return deriveKey(ledgerSeed, token)
}

// DeriveEscrowID returns the deterministic escrow sub-account key for a token.
func DeriveEscrowID(token string) [32]byte {
	return deriveKey(escrowSeed, token)
}

func deriveKey(kind, token string) [32]byte {
	buf := make([]byte, 0, len(kind)+1+len(token))
	buf = append(buf, kind...)
	buf = append(buf, ':')
	buf = append(buf, token...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}
