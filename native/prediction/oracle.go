package prediction

import (
	"context"
	"fmt"
)

// Oracle reports the external lifecycle status of a loan contract. It never
// mutates loan state.
type Oracle interface {
	LoanStatus(ctx context.Context, loan [20]byte) (LoanStatus, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, loan [20]byte) (LoanStatus, error)

// LoanStatus implements Oracle.
func (f OracleFunc) LoanStatus(ctx context.Context, loan [20]byte) (LoanStatus, error) {
	return f(ctx, loan)
}

// OverlayStatus combines the raw oracle report with the registry record.
// A loan without a creator that the oracle still considers unfunded is
// Retracted if it was ever submitted and Void otherwise.
func OverlayStatus(raw LoanStatus, loan *Loan) LoanStatus {
	if loan.HasCreator() {
		return raw
	}
	if raw != StatusVoid && raw != StatusPending {
		return raw
	}
	if loan.Submitted() {
		return StatusRetracted
	}
	return StatusVoid
}

func (e *Engine) rawStatus(ctx context.Context, loan [20]byte) (LoanStatus, error) {
	if e.oracle == nil {
		return StatusVoid, errNilOracle
	}
	if ctx == nil {
		ctx = context.Background()
	}
	status, err := e.oracle.LoanStatus(ctx, loan)
	if err != nil {
		return StatusVoid, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if !status.External() {
		return StatusVoid, fmt.Errorf("%w: oracle reported %s", ErrOracleUnavailable, status)
	}
	return status, nil
}

// Status returns the current lifecycle status of the loan including the
// Retracted overlay.
func (e *Engine) Status(ctx context.Context, loan [20]byte) (LoanStatus, error) {
	if e == nil || e.state == nil {
		return StatusVoid, errNilState
	}
	record, err := e.loadLoan(loan)
	if err != nil {
		return StatusVoid, err
	}
	return e.statusOf(ctx, record)
}

// statusOf reports the outcome frozen in the resolution once one exists.
// Terminal states have no way out, whatever the oracle reports afterwards.
func (e *Engine) statusOf(ctx context.Context, loan *Loan) (LoanStatus, error) {
	res, ok, err := e.resolved(loan.Address)
	if err != nil {
		return StatusVoid, err
	}
	if ok {
		return res.Outcome, nil
	}
	raw, err := e.rawStatus(ctx, loan.Address)
	if err != nil {
		return StatusVoid, err
	}
	return OverlayStatus(raw, loan), nil
}

func (e *Engine) resolved(loan [20]byte) (*Resolution, bool, error) {
	res, ok, err := e.state.PredictionResolutionGet(loan)
	if err != nil {
		return nil, false, err
	}
	if !ok || res == nil || !res.Outcome.Terminal() {
		return nil, false, nil
	}
	return res, true, nil
}
