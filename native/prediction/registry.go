package prediction

import (
	"context"
	"math/big"
)

// Submit registers loan on behalf of creator. The loan contract must still be
// awaiting funding and no other submission may be active. A loan retracted
// earlier can only be resubmitted once every stale position was withdrawn.
func (e *Engine) Submit(ctx context.Context, loanAddr, creator [20]byte) (*Loan, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if isZeroAddress(loanAddr) || isZeroAddress(creator) {
		return nil, ErrInvalidAddress
	}
	loan, err := e.loadLoan(loanAddr)
	if err != nil {
		return nil, err
	}
	if loan.HasCreator() {
		return nil, ErrAlreadyCreated
	}
	if _, ok, err := e.resolved(loanAddr); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrLoanTerminal
	}
	raw, err := e.rawStatus(ctx, loanAddr)
	if err != nil {
		return nil, err
	}
	if raw != StatusPending {
		return nil, ErrLoanNotPending
	}
	if loan.Escrowed.Sign() > 0 {
		return nil, ErrOpenPositions
	}
	resubmitted := loan.Submitted()
	loan.Creator = creator
	if !resubmitted {
		loan.SubmittedAt = e.now()
	}
	if err := e.state.PredictionLoanPut(loan); err != nil {
		return nil, err
	}
	if !resubmitted {
		if err := e.state.PredictionLoanIndexAppend(loanAddr); err != nil {
			return nil, err
		}
	}
	e.emit(LoanSubmittedEvent(loan, resubmitted))
	return loan.Clone(), nil
}

// Retract withdraws a pending loan from consideration. Only the creator may
// retract. Aggregates reset to zero; individual positions stay readable and
// are refunded 1:1 through Withdraw.
func (e *Engine) Retract(ctx context.Context, loanAddr, caller [20]byte) (*Loan, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
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
	if caller != loan.Creator {
		return nil, ErrNotCreator
	}
	creator := loan.Creator
	clearedYes, clearedNo := loan.Total(SideYes), loan.Total(SideNo)
	loan.Creator = [20]byte{}
	loan.TotalYes = big.NewInt(0)
	loan.TotalNo = big.NewInt(0)
	if err := e.state.PredictionLoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(LoanRetractedEvent(loanAddr, creator, clearedYes.String(), clearedNo.String()))
	return loan.Clone(), nil
}

// Loan returns the registry record for addr. Loans never submitted read as an
// empty record.
func (e *Engine) Loan(addr [20]byte) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(addr)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Loans lists every loan ever submitted in first-submission order.
func (e *Engine) Loans() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PredictionLoanIndex()
}
