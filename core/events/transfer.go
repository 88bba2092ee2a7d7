package events

import (
	"math/big"

	"stakeoracle/core/types"
)

const (
	// TypeTransfer is emitted for token balance movements.
	TypeTransfer = "token.transfer"
	// TypeApproval is emitted when an owner sets a spender allowance.
	TypeApproval = "token.approval"
)

// Transfer captures a debit from one account and the matching credit to another.
type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = HexAddress(e.From)
	attrs["to"] = HexAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

// Approval captures an allowance update.
type Approval struct {
	Asset   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	attrs := map[string]string{
		"owner":   HexAddress(e.Owner),
		"spender": HexAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeApproval, Attributes: attrs}
}
