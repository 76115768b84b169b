package events

import (
	"math/big"
	"strconv"

	"vestchain/core/types"
	"vestchain/crypto"
)

const (
	TypeScheduleInitialized = "vesting.initialized"
	TypeTokensClaimed       = "vesting.claimed"
	TypeUnclaimedWithdrawn  = "vesting.unclaimed_withdrawn"
	TypeAdminChanged        = "vesting.admin_changed"
)

type ScheduleInitialized struct {
	Admin            [20]byte
	Token            string
	TotalAmount      uint64
	BeneficiaryCount uint32
}

func (ScheduleInitialized) EventType() string { return TypeScheduleInitialized }

func (e ScheduleInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeScheduleInitialized,
		Attributes: map[string]string{
			"admin":            crypto.NewAddress(crypto.VestPrefix, e.Admin[:]).String(),
			"token":            e.Token,
			"totalAmount":      strconv.FormatUint(e.TotalAmount, 10),
			"beneficiaryCount": strconv.FormatUint(uint64(e.BeneficiaryCount), 10),
		},
	}
}

type TokensClaimed struct {
	Beneficiary [20]byte
	Token       string
	Amount      uint64
	Timestamp   int64
}

func (TokensClaimed) EventType() string { return TypeTokensClaimed }

func (e TokensClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTokensClaimed,
		Attributes: map[string]string{
			"beneficiary": crypto.NewAddress(crypto.VestPrefix, e.Beneficiary[:]).String(),
			"token":       e.Token,
			"amount":      strconv.FormatUint(e.Amount, 10),
			"timestamp":   intToString(e.Timestamp),
		},
	}
}

type UnclaimedWithdrawn struct {
	Admin          [20]byte
	Token          string
	TotalAmount    uint64
	ProcessedCount uint32
	Timestamp      int64
}

func (UnclaimedWithdrawn) EventType() string { return TypeUnclaimedWithdrawn }

func (e UnclaimedWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeUnclaimedWithdrawn,
		Attributes: map[string]string{
			"admin":          crypto.NewAddress(crypto.VestPrefix, e.Admin[:]).String(),
			"token":          e.Token,
			"totalAmount":    strconv.FormatUint(e.TotalAmount, 10),
			"processedCount": strconv.FormatUint(uint64(e.ProcessedCount), 10),
			"timestamp":      intToString(e.Timestamp),
		},
	}
}

type AdminChanged struct {
	Token     string
	OldAdmin  [20]byte
	NewAdmin  [20]byte
	Timestamp int64
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeAdminChanged,
		Attributes: map[string]string{
			"token":     e.Token,
			"oldAdmin":  crypto.NewAddress(crypto.VestPrefix, e.OldAdmin[:]).String(),
			"newAdmin":  crypto.NewAddress(crypto.VestPrefix, e.NewAdmin[:]).String(),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

func intToString(v int64) string {
	return big.NewInt(v).String()
}
