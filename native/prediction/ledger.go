package prediction

import (
	"context"
	"math/big"
)

// Vote stakes amount on side of a pending loan. The stake is pulled from the
// staker into custody with the stake token's allowance mechanism after the
// ledger has been updated.
func (e *Engine) Vote(ctx context.Context, loanAddr, staker [20]byte, side Side, amount *big.Int) (*Vote, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.requireTokens(); err != nil {
		return nil, err
	}
	if side != SideYes && side != SideNo {
		return nil, ErrInvalidSide
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if isZeroAddress(staker) {
		return nil, ErrInvalidAddress
	}
	loan, err := e.loadLoan(loanAddr)
	if err != nil {
		return nil, err
	}
	status, err := e.statusOf(ctx, loan)
	if err != nil {
		return nil, err
	}
	if status != StatusPending {
		return nil, ErrLoanNotPending
	}
	vote, err := e.loadVote(loanAddr, staker)
	if err != nil {
		return nil, err
	}
	if vote.Amount(side.Opposite()).Sign() > 0 {
		return nil, ErrBothSides
	}
	switch side {
	case SideYes:
		vote.Yes = new(big.Int).Add(vote.Yes, amount)
		loan.TotalYes = new(big.Int).Add(loan.TotalYes, amount)
	case SideNo:
		vote.No = new(big.Int).Add(vote.No, amount)
		loan.TotalNo = new(big.Int).Add(loan.TotalNo, amount)
	}
	loan.Escrowed = new(big.Int).Add(loan.Escrowed, amount)
	if err := e.state.PredictionVotePut(vote); err != nil {
		return nil, err
	}
	if err := e.state.PredictionLoanPut(loan); err != nil {
		return nil, err
	}
	if err := e.stake.TransferFrom(e.custody, staker, e.custody, amount); err != nil {
		return nil, err
	}
	e.emit(VoteCastEvent(loanAddr, staker, side, amount.String(), loan.Total(side).String()))
	return vote.Clone(), nil
}

// applyWithdrawal debits the staker's position and the open escrow. The side
// aggregate is only reduced while the loan is pending: retraction already
// zeroed it and terminal payouts read the frozen resolution.
func (e *Engine) applyWithdrawal(plan *withdrawalPlan) error {
	amount := plan.settlement.Amount
	if err := debit(plan.vote, plan.side, amount); err != nil {
		return err
	}
	loan := plan.loan
	if plan.status == StatusPending {
		switch plan.side {
		case SideYes:
			loan.TotalYes = new(big.Int).Sub(loan.TotalYes, amount)
		case SideNo:
			loan.TotalNo = new(big.Int).Sub(loan.TotalNo, amount)
		}
	}
	loan.Escrowed = new(big.Int).Sub(loan.Escrowed, amount)
	if loan.TotalYes.Sign() < 0 || loan.TotalNo.Sign() < 0 || loan.Escrowed.Sign() < 0 {
		return errCorruptLedger
	}
	if err := e.state.PredictionVotePut(plan.vote); err != nil {
		return err
	}
	return e.state.PredictionLoanPut(loan)
}

func debit(vote *Vote, side Side, amount *big.Int) error {
	switch side {
	case SideYes:
		if vote.Yes.Cmp(amount) < 0 {
			return ErrOverWithdrawn
		}
		vote.Yes = new(big.Int).Sub(vote.Yes, amount)
	case SideNo:
		if vote.No.Cmp(amount) < 0 {
			return ErrOverWithdrawn
		}
		vote.No = new(big.Int).Sub(vote.No, amount)
	default:
		return ErrOverWithdrawn
	}
	return nil
}

// VoteOf returns the staker's position on loan. Missing records read as zero.
func (e *Engine) VoteOf(loan, staker [20]byte) (*Vote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadVote(loan, staker)
}

// YesVote returns the staker's stake on repayment.
func (e *Engine) YesVote(loan, staker [20]byte) (*big.Int, error) {
	vote, err := e.VoteOf(loan, staker)
	if err != nil {
		return nil, err
	}
	return vote.Amount(SideYes), nil
}

// NoVote returns the staker's stake on default.
func (e *Engine) NoVote(loan, staker [20]byte) (*big.Int, error) {
	vote, err := e.VoteOf(loan, staker)
	if err != nil {
		return nil, err
	}
	return vote.Amount(SideNo), nil
}

// TotalYes returns the loan's yes aggregate.
func (e *Engine) TotalYes(loan [20]byte) (*big.Int, error) {
	record, err := e.Loan(loan)
	if err != nil {
		return nil, err
	}
	return record.Total(SideYes), nil
}

// TotalNo returns the loan's no aggregate.
func (e *Engine) TotalNo(loan [20]byte) (*big.Int, error) {
	record, err := e.Loan(loan)
	if err != nil {
		return nil, err
	}
	return record.Total(SideNo), nil
}
