package events

import (
	"math/big"

	"stakeoracle/core/types"
)

const (
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint marks genesis allocations.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn marks stake destroyed by a losing withdrawal.
	SupplyReasonBurn = "burn"
)

// TokenSupply records a supply change together with the account whose balance
// moved with it. Mints carry a positive delta and burns a negative one.
type TokenSupply struct {
	Asset   string
	Account [20]byte
	Total   *big.Int
	Delta   *big.Int
	Reason  string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the supply change. A missing reason is derived from the sign
// of the delta.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{
		"account": HexAddress(e.Account),
		"total":   formatAmount(e.Total),
		"delta":   formatAmount(e.Delta),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	reason := e.Reason
	if reason == "" && e.Delta != nil {
		switch e.Delta.Sign() {
		case 1:
			reason = SupplyReasonMint
		case -1:
			reason = SupplyReasonBurn
		}
	}
	if reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
