package prediction

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"stakeoracle/core/events"
	"stakeoracle/core/types"
	"stakeoracle/native/params"
)

type engineState interface {
	PredictionLoanGet(loan [20]byte) (*Loan, bool, error)
	PredictionLoanPut(loan *Loan) error
	PredictionLoanIndexAppend(loan [20]byte) error
	PredictionLoanIndex() ([][20]byte, error)
	PredictionVoteGet(loan [20]byte, staker [20]byte) (*Vote, bool, error)
	PredictionVotePut(vote *Vote) error
	PredictionResolutionGet(loan [20]byte) (*Resolution, bool, error)
	PredictionResolutionPut(resolution *Resolution) error
}

type paramStore interface {
	Redistribution() (params.Redistribution, error)
	SetRedistribution(params.Redistribution) error
}

// Token is the subset of fungible token behaviour the engine relies on. The
// stake token must support all three operations; the settlement token only
// needs Transfer.
type Token interface {
	Symbol() string
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	Burn(holder [20]byte, amount *big.Int) error
}

// Engine implements the loan registry, vote ledger, parameter store and
// redistribution rules on top of a transactional state backend. Callers are
// expected to serialise access; the engine itself only guards against
// reentrant calls issued from token hooks.
type Engine struct {
	state      engineState
	params     paramStore
	oracle     Oracle
	stake      Token
	settlement Token
	emitter    events.Emitter
	nowFn      func() int64
	admin      [20]byte
	custody    [20]byte
	busy       bool
}

// NewEngine constructs a prediction engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams configures the redistribution parameter store.
func (e *Engine) SetParams(store paramStore) { e.params = store }

// SetOracle configures the loan status oracle.
func (e *Engine) SetOracle(oracle Oracle) { e.oracle = oracle }

// SetTokens configures the stake and settlement tokens. A nil settlement
// token pays out in the stake token.
func (e *Engine) SetTokens(stake, settlement Token) {
	e.stake = stake
	if settlement == nil {
		settlement = stake
	}
	e.settlement = settlement
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetAdmin configures the account allowed to change redistribution factors.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetCustody configures the account holding staked tokens.
func (e *Engine) SetCustody(addr [20]byte) { e.custody = addr }

// Admin returns the configured administrator.
func (e *Engine) Admin() [20]byte { return e.admin }

// Custody returns the configured custody account.
func (e *Engine) Custody() [20]byte { return e.custody }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter marks the engine busy for the duration of a mutating call. Token
// hooks that call back into the engine observe the flag and are rejected.
func (e *Engine) enter() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.busy {
		return ErrReentrantCall
	}
	e.busy = true
	return nil
}

func (e *Engine) exit() { e.busy = false }

func (e *Engine) requireTokens() error {
	if e.stake == nil || e.settlement == nil {
		return errNilToken
	}
	if isZeroAddress(e.custody) {
		return errCustodyNotSet
	}
	return nil
}

func (e *Engine) loadLoan(addr [20]byte) (*Loan, error) {
	loan, ok, err := e.state.PredictionLoanGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return newLoan(addr), nil
	}
	return ensureLoan(loan), nil
}

func (e *Engine) loadVote(loan, staker [20]byte) (*Vote, error) {
	vote, ok, err := e.state.PredictionVoteGet(loan, staker)
	if err != nil {
		return nil, err
	}
	if !ok || vote == nil {
		return newVote(loan, staker), nil
	}
	if vote.Yes == nil {
		vote.Yes = big.NewInt(0)
	}
	if vote.No == nil {
		vote.No = big.NewInt(0)
	}
	return vote, nil
}

func ensureLoan(loan *Loan) *Loan {
	if loan.TotalYes == nil {
		loan.TotalYes = big.NewInt(0)
	}
	if loan.TotalNo == nil {
		loan.TotalNo = big.NewInt(0)
	}
	if loan.Escrowed == nil {
		loan.Escrowed = big.NewInt(0)
	}
	return loan
}

// Withdraw releases amount of the staker's position on loan according to the
// loan's current status. Ledger records are updated before any token leaves
// custody; the returned settlement lists the effects that were executed.
func (e *Engine) Withdraw(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*Settlement, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.requireTokens(); err != nil {
		return nil, err
	}
	plan, err := e.prepareWithdrawal(ctx, loan, staker, amount)
	if err != nil {
		return nil, err
	}
	if plan.captured {
		if err := e.state.PredictionResolutionPut(plan.resolution); err != nil {
			return nil, err
		}
	}
	if err := e.applyWithdrawal(plan); err != nil {
		return nil, err
	}
	if err := e.execute(plan.settlement.Effects); err != nil {
		return nil, err
	}
	if plan.captured {
		e.emit(ResolutionCapturedEvent(plan.resolution))
	}
	e.emit(WithdrawalEvent(plan.settlement))
	return plan.settlement, nil
}

// Quote returns the settlement a withdrawal of amount would execute right now
// without mutating state.
func (e *Engine) Quote(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireTokens(); err != nil {
		return nil, err
	}
	plan, err := e.prepareWithdrawal(ctx, loan, staker, amount)
	if err != nil {
		return nil, err
	}
	return plan.settlement, nil
}

type withdrawalPlan struct {
	loan       *Loan
	vote       *Vote
	side       Side
	status     LoanStatus
	resolution *Resolution
	captured   bool
	settlement *Settlement
}

func (e *Engine) prepareWithdrawal(ctx context.Context, loanAddr, staker [20]byte, amount *big.Int) (*withdrawalPlan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.params == nil {
		return nil, errNilParams
	}
	loan, err := e.loadLoan(loanAddr)
	if err != nil {
		return nil, err
	}
	status, err := e.statusOf(ctx, loan)
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusRunning:
		return nil, ErrLoanRunning
	case StatusVoid:
		return nil, ErrLoanVoid
	}
	vote, err := e.loadVote(loanAddr, staker)
	if err != nil {
		return nil, err
	}
	side := vote.Side()
	if side == SideNone || vote.Amount(side).Cmp(amount) < 0 {
		return nil, ErrOverWithdrawn
	}
	plan := &withdrawalPlan{loan: loan, vote: vote, side: side, status: status}
	if status.Terminal() {
		res, ok, err := e.resolved(loanAddr)
		if err != nil {
			return nil, err
		}
		if !ok {
			res = &Resolution{
				Loan:       loanAddr,
				Outcome:    status,
				TotalYes:   loan.Total(SideYes),
				TotalNo:    loan.Total(SideNo),
				CapturedAt: e.now(),
			}
			plan.captured = true
		}
		plan.resolution = res
	}
	redistribution, err := e.params.Redistribution()
	if err != nil {
		return nil, err
	}
	outcome := status
	if plan.resolution != nil {
		outcome = plan.resolution.Outcome
	}
	rule, payout, burn, err := computeSettlement(outcome, side, amount, plan.resolution, redistribution)
	if err != nil {
		return nil, err
	}
	settlement := &Settlement{
		Loan:   loanAddr,
		Staker: staker,
		Status: status,
		Side:   side,
		Rule:   rule,
		Amount: newBigInt(amount),
		Payout: payout,
		Burn:   burn,
		Params: redistribution,
	}
	settlement.Effects = e.settlementEffects(settlement)
	plan.settlement = settlement
	return plan, nil
}

// Resolution returns the frozen terminal record for loan if one was captured.
func (e *Engine) Resolution(loan [20]byte) (*Resolution, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	res, ok, err := e.state.PredictionResolutionGet(loan)
	if err != nil || !ok {
		return nil, false, err
	}
	return res.Clone(), true, nil
}

// View returns the registry record, current status and resolution for loan.
func (e *Engine) View(ctx context.Context, loan [20]byte) (*LoanView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.loadLoan(loan)
	if err != nil {
		return nil, err
	}
	status, err := e.statusOf(ctx, record)
	if err != nil {
		return nil, err
	}
	view := &LoanView{Loan: record.Clone(), Status: status}
	if res, ok, err := e.Resolution(loan); err != nil {
		return nil, err
	} else if ok {
		view.Resolution = res
	}
	return view, nil
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
