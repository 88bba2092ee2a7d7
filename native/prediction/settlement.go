package prediction

import (
	"math/big"

	"stakeoracle/native/params"
)

// Rule names the payout formula applied to a withdrawal.
type Rule string

const (
	// RuleRefund returns stake 1:1 before the loan is funded.
	RuleRefund Rule = "refund"
	// RuleWinner pays stake plus a share of the bonus pool.
	RuleWinner Rule = "winner"
	// RuleLoser pays stake minus the loss factor and burns part of the loss.
	RuleLoser Rule = "loser"
)

// EffectKind distinguishes the token operations a settlement performs.
type EffectKind string

const (
	// EffectPayout moves settlement tokens from custody to the staker.
	EffectPayout EffectKind = "payout"
	// EffectBurn destroys stake tokens held in custody.
	EffectBurn EffectKind = "burn"
)

// Effect is a token operation executed after the ledger has been updated.
type Effect struct {
	Kind   EffectKind `json:"kind"`
	Asset  string     `json:"asset"`
	From   [20]byte   `json:"from"`
	To     [20]byte   `json:"to,omitempty"`
	Amount *big.Int   `json:"amount"`
}

// Settlement describes the outcome of a withdrawal, executed or quoted.
type Settlement struct {
	Loan    [20]byte              `json:"loan"`
	Staker  [20]byte              `json:"staker"`
	Status  LoanStatus            `json:"status"`
	Side    Side                  `json:"side"`
	Rule    Rule                  `json:"rule"`
	Amount  *big.Int              `json:"amount"`
	Payout  *big.Int              `json:"payout"`
	Burn    *big.Int              `json:"burn"`
	Params  params.Redistribution `json:"params"`
	Effects []Effect              `json:"effects"`
}

// computeSettlement selects the payout rule for the status and side and
// derives the amounts. Terminal statuses require the frozen resolution.
func computeSettlement(status LoanStatus, side Side, amount *big.Int, res *Resolution, p params.Redistribution) (Rule, *big.Int, *big.Int, error) {
	switch status {
	case StatusPending, StatusRetracted:
		return RuleRefund, newBigInt(amount), big.NewInt(0), nil
	case StatusSettled, StatusDefaulted:
		if res == nil || !res.Outcome.Terminal() {
			return "", nil, nil, errInvalidResolved
		}
		if side == res.Outcome.WinningSide() {
			return RuleWinner, winnerPayout(amount, res.Winning(), res.Losing(), p), big.NewInt(0), nil
		}
		return RuleLoser, loserPayout(amount, p), loserBurn(amount, p), nil
	case StatusRunning:
		return "", nil, nil, ErrLoanRunning
	default:
		return "", nil, nil, ErrLoanVoid
	}
}

func (e *Engine) settlementEffects(s *Settlement) []Effect {
	effects := make([]Effect, 0, 2)
	if s.Payout.Sign() > 0 {
		effects = append(effects, Effect{
			Kind:   EffectPayout,
			Asset:  e.settlement.Symbol(),
			From:   e.custody,
			To:     s.Staker,
			Amount: newBigInt(s.Payout),
		})
	}
	if s.Burn.Sign() > 0 {
		effects = append(effects, Effect{
			Kind:   EffectBurn,
			Asset:  e.stake.Symbol(),
			From:   e.custody,
			Amount: newBigInt(s.Burn),
		})
	}
	return effects
}

// execute performs the token effects in order. Any failure aborts the call;
// callers run inside a state transaction that is discarded on error.
func (e *Engine) execute(effects []Effect) error {
	for _, effect := range effects {
		var err error
		switch effect.Kind {
		case EffectPayout:
			err = e.settlement.Transfer(effect.From, effect.To, effect.Amount)
		case EffectBurn:
			err = e.stake.Burn(effect.From, effect.Amount)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
