package prediction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"stakeoracle/core/events"
	"stakeoracle/native/params"
)

type mockState struct {
	loans       map[[20]byte]*Loan
	votes       map[string]*Vote
	resolutions map[[20]byte]*Resolution
	index       [][20]byte
}

func newMockState() *mockState {
	return &mockState{
		loans:       make(map[[20]byte]*Loan),
		votes:       make(map[string]*Vote),
		resolutions: make(map[[20]byte]*Resolution),
	}
}

func voteKey(loan, staker [20]byte) string {
	return string(loan[:]) + string(staker[:])
}

func (m *mockState) PredictionLoanGet(loan [20]byte) (*Loan, bool, error) {
	record, ok := m.loans[loan]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) PredictionLoanPut(loan *Loan) error {
	m.loans[loan.Address] = loan.Clone()
	return nil
}

func (m *mockState) PredictionLoanIndexAppend(loan [20]byte) error {
	for _, existing := range m.index {
		if existing == loan {
			return nil
		}
	}
	m.index = append(m.index, loan)
	return nil
}

func (m *mockState) PredictionLoanIndex() ([][20]byte, error) {
	out := make([][20]byte, len(m.index))
	copy(out, m.index)
	return out, nil
}

func (m *mockState) PredictionVoteGet(loan, staker [20]byte) (*Vote, bool, error) {
	vote, ok := m.votes[voteKey(loan, staker)]
	if !ok {
		return nil, false, nil
	}
	return vote.Clone(), true, nil
}

func (m *mockState) PredictionVotePut(vote *Vote) error {
	m.votes[voteKey(vote.Loan, vote.Staker)] = vote.Clone()
	return nil
}

func (m *mockState) PredictionResolutionGet(loan [20]byte) (*Resolution, bool, error) {
	res, ok := m.resolutions[loan]
	if !ok {
		return nil, false, nil
	}
	return res.Clone(), true, nil
}

func (m *mockState) PredictionResolutionPut(res *Resolution) error {
	m.resolutions[res.Loan] = res.Clone()
	return nil
}

type mockParams struct {
	value *params.Redistribution
}

func (m *mockParams) Redistribution() (params.Redistribution, error) {
	if m.value == nil {
		return params.DefaultRedistribution(), nil
	}
	return *m.value, nil
}

func (m *mockParams) SetRedistribution(value params.Redistribution) error {
	if err := value.Validate(); err != nil {
		return err
	}
	m.value = &value
	return nil
}

type mockToken struct {
	symbol     string
	balances   map[[20]byte]*big.Int
	allowances map[[40]byte]*big.Int
	supply     *big.Int
	onTransfer func(from, to [20]byte, amount *big.Int)
}

func newMockToken(symbol string) *mockToken {
	return &mockToken{
		symbol:     symbol,
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[40]byte]*big.Int),
		supply:     big.NewInt(0),
	}
}

func allowanceKey(owner, spender [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], owner[:])
	copy(key[20:], spender[:])
	return key
}

func (t *mockToken) Symbol() string { return t.symbol }

func (t *mockToken) balance(addr [20]byte) *big.Int {
	if bal, ok := t.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (t *mockToken) mint(addr [20]byte, amount int64) {
	t.balances[addr] = new(big.Int).Add(t.balance(addr), big.NewInt(amount))
	t.supply = new(big.Int).Add(t.supply, big.NewInt(amount))
}

func (t *mockToken) approve(owner, spender [20]byte, amount int64) {
	t.allowances[allowanceKey(owner, spender)] = big.NewInt(amount)
}

func (t *mockToken) move(from, to [20]byte, amount *big.Int) error {
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance", t.symbol)
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	if t.onTransfer != nil {
		t.onTransfer(from, to, amount)
	}
	return nil
}

func (t *mockToken) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	key := allowanceKey(from, spender)
	allowance, ok := t.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient allowance", t.symbol)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[key] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (t *mockToken) Transfer(from, to [20]byte, amount *big.Int) error {
	return t.move(from, to, amount)
}

func (t *mockToken) Burn(holder [20]byte, amount *big.Int) error {
	bal := t.balance(holder)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance", t.symbol)
	}
	t.balances[holder] = bal.Sub(bal, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

type mapOracle map[[20]byte]LoanStatus

func (m mapOracle) LoanStatus(_ context.Context, loan [20]byte) (LoanStatus, error) {
	return m[loan], nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

type fixture struct {
	engine  *Engine
	state   *mockState
	params  *mockParams
	oracle  mapOracle
	token   *mockToken
	emitter *recordingEmitter
	admin   [20]byte
	custody [20]byte
	now     int64
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	out[0] = 0xAA
	return out
}

var (
	testLoan    = addr(0x10)
	testCreator = addr(0x20)
	stakerA     = addr(0x31)
	stakerB     = addr(0x32)
	stakerC     = addr(0x33)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockState(),
		params:  &mockParams{},
		oracle:  mapOracle{},
		token:   newMockToken("STAKE"),
		emitter: &recordingEmitter{},
		admin:   addr(0x01),
		custody: addr(0x02),
		now:     1_700_000_000,
	}
	engine := NewEngine()
	engine.SetState(f.state)
	engine.SetParams(f.params)
	engine.SetOracle(f.oracle)
	engine.SetTokens(f.token, nil)
	engine.SetEmitter(f.emitter)
	engine.SetAdmin(f.admin)
	engine.SetCustody(f.custody)
	engine.SetNowFunc(func() int64 { return f.now })
	f.engine = engine
	return f
}

func (f *fixture) fund(t *testing.T, staker [20]byte, amount int64) {
	t.Helper()
	f.token.mint(staker, amount)
	f.token.approve(staker, f.custody, amount)
}

func (f *fixture) submit(t *testing.T) {
	t.Helper()
	f.oracle[testLoan] = StatusPending
	if _, err := f.engine.Submit(context.Background(), testLoan, testCreator); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func (f *fixture) vote(t *testing.T, staker [20]byte, side Side, amount int64) {
	t.Helper()
	f.fund(t, staker, amount)
	if _, err := f.engine.Vote(context.Background(), testLoan, staker, side, big.NewInt(amount)); err != nil {
		t.Fatalf("vote: %v", err)
	}
}

func (f *fixture) setParams(t *testing.T, loss, burn uint32) {
	t.Helper()
	if err := f.engine.SetLossFactor(f.admin, loss); err != nil {
		t.Fatalf("set loss factor: %v", err)
	}
	if err := f.engine.SetBurnFactor(f.admin, burn); err != nil {
		t.Fatalf("set burn factor: %v", err)
	}
}

func (f *fixture) withdraw(t *testing.T, staker [20]byte, amount int64) *Settlement {
	t.Helper()
	settlement, err := f.engine.Withdraw(context.Background(), testLoan, staker, big.NewInt(amount))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	return settlement
}

func requireBig(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: expected %d, got %v", label, want, got)
	}
}

func TestRedistributionScenarios(t *testing.T) {
	cases := []struct {
		name         string
		loss, burn   uint32
		winnerPayout int64
		loserPayout  int64
		loserBurn    int64
	}{
		{name: "default factors", loss: 2_500, burn: 2_500, winnerPayout: 1_187_500, loserPayout: 750_000, loserBurn: 62_500},
		{name: "custom factors", loss: 1_000, burn: 5_000, winnerPayout: 1_050_000, loserPayout: 900_000, loserBurn: 50_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.setParams(t, tc.loss, tc.burn)
			f.submit(t)
			f.vote(t, stakerA, SideYes, 1_000_000)
			f.vote(t, stakerB, SideNo, 1_000_000)
			f.oracle[testLoan] = StatusSettled

			win := f.withdraw(t, stakerA, 1_000_000)
			if win.Rule != RuleWinner {
				t.Fatalf("expected winner rule, got %s", win.Rule)
			}
			requireBig(t, "winner payout", win.Payout, tc.winnerPayout)
			requireBig(t, "winner burn", win.Burn, 0)
			requireBig(t, "winner balance", f.token.balance(stakerA), tc.winnerPayout)

			supplyBefore := new(big.Int).Set(f.token.supply)
			lose := f.withdraw(t, stakerB, 1_000_000)
			if lose.Rule != RuleLoser {
				t.Fatalf("expected loser rule, got %s", lose.Rule)
			}
			requireBig(t, "loser payout", lose.Payout, tc.loserPayout)
			requireBig(t, "loser burn", lose.Burn, tc.loserBurn)
			requireBig(t, "loser balance", f.token.balance(stakerB), tc.loserPayout)
			requireBig(t, "burned supply", new(big.Int).Sub(supplyBefore, f.token.supply), tc.loserBurn)

			requireBig(t, "custody remainder", f.token.balance(f.custody), 0)
		})
	}
}

func TestDefaultedRewardsNoSide(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000_000)
	f.vote(t, stakerB, SideNo, 1_000_000)
	f.oracle[testLoan] = StatusDefaulted

	requireBig(t, "no side payout", f.withdraw(t, stakerB, 1_000_000).Payout, 1_187_500)
	requireBig(t, "yes side payout", f.withdraw(t, stakerA, 1_000_000).Payout, 750_000)
}

func TestUnanimousPredictionPaysNoBonus(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 600_000)
	f.vote(t, stakerB, SideYes, 400_000)
	f.oracle[testLoan] = StatusSettled
	supply := new(big.Int).Set(f.token.supply)

	requireBig(t, "payout A", f.withdraw(t, stakerA, 600_000).Payout, 600_000)
	requireBig(t, "payout B", f.withdraw(t, stakerB, 400_000).Payout, 400_000)
	if f.token.supply.Cmp(supply) != 0 {
		t.Fatalf("supply changed: %s -> %s", supply, f.token.supply)
	}
}

func TestWinnerWithoutWinningAggregate(t *testing.T) {
	if got := winnerPayout(big.NewInt(10), big.NewInt(0), big.NewInt(1_000), params.DefaultRedistribution()); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected amount back, got %s", got)
	}
}

func TestRetractResetsTotalsAndKeepsVotes(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 5_000)
	f.vote(t, stakerB, SideNo, 2_000)

	if _, err := f.engine.Retract(context.Background(), testLoan, testCreator); err != nil {
		t.Fatalf("retract: %v", err)
	}
	totalYes, _ := f.engine.TotalYes(testLoan)
	totalNo, _ := f.engine.TotalNo(testLoan)
	requireBig(t, "totalYes", totalYes, 0)
	requireBig(t, "totalNo", totalNo, 0)
	yes, _ := f.engine.YesVote(testLoan, stakerA)
	requireBig(t, "yesVote", yes, 5_000)

	status, err := f.engine.Status(context.Background(), testLoan)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != StatusRetracted {
		t.Fatalf("expected retracted, got %s", status)
	}

	refund := f.withdraw(t, stakerA, 5_000)
	if refund.Rule != RuleRefund {
		t.Fatalf("expected refund rule, got %s", refund.Rule)
	}
	requireBig(t, "refund", f.token.balance(stakerA), 5_000)
	totalYes, _ = f.engine.TotalYes(testLoan)
	requireBig(t, "totalYes after refund", totalYes, 0)
}

func TestResubmitRequiresClosedPositions(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	firstSubmit := f.now
	f.vote(t, stakerA, SideYes, 5_000)
	if _, err := f.engine.Retract(context.Background(), testLoan, testCreator); err != nil {
		t.Fatalf("retract: %v", err)
	}

	f.now += 3_600
	_, err := f.engine.Submit(context.Background(), testLoan, testCreator)
	if !errors.Is(err, ErrOpenPositions) {
		t.Fatalf("expected open positions error, got %v", err)
	}

	f.withdraw(t, stakerA, 5_000)
	loan, err := f.engine.Submit(context.Background(), testLoan, stakerC)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if loan.SubmittedAt != firstSubmit {
		t.Fatalf("submission timestamp not sticky: %d", loan.SubmittedAt)
	}
	if loan.Creator != stakerC {
		t.Fatalf("unexpected creator")
	}
	loans, _ := f.engine.Loans()
	if len(loans) != 1 || loans[0] != testLoan {
		t.Fatalf("unexpected loan index: %v", loans)
	}
	last := f.emitter.events[len(f.emitter.events)-1].(eventEnvelope).evt
	if last.Type != EventTypeLoanSubmitted || last.Attributes["resubmitted"] != "true" {
		t.Fatalf("unexpected event: %+v", last)
	}
}

func TestSubmitRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	_, err := f.engine.Submit(context.Background(), testLoan, stakerA)
	if !errors.Is(err, ErrAlreadyCreated) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if KindOf(err) != KindDuplication {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestSubmitRequiresUnfundedLoan(t *testing.T) {
	f := newFixture(t)
	f.oracle[testLoan] = StatusRunning
	if _, err := f.engine.Submit(context.Background(), testLoan, testCreator); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
}

func TestRetractAuthorization(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	_, err := f.engine.Retract(context.Background(), testLoan, stakerA)
	if !errors.Is(err, ErrNotCreator) || KindOf(err) != KindAuthorization {
		t.Fatalf("expected authorization error, got %v", err)
	}
	f.oracle[testLoan] = StatusRunning
	if _, err := f.engine.Retract(context.Background(), testLoan, testCreator); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
}

func TestDoubleSidedVoteRejected(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1)
	f.fund(t, stakerA, 1)
	_, err := f.engine.Vote(context.Background(), testLoan, stakerA, SideNo, big.NewInt(1))
	if !errors.Is(err, ErrBothSides) {
		t.Fatalf("expected both sides error, got %v", err)
	}
	if KindOf(err) != KindConservation {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}

	f.withdraw(t, stakerA, 1)
	if _, err := f.engine.Vote(context.Background(), testLoan, stakerA, SideNo, big.NewInt(1)); err != nil {
		t.Fatalf("vote after full withdrawal: %v", err)
	}
}

func TestVoteRequiresPending(t *testing.T) {
	f := newFixture(t)
	f.fund(t, stakerA, 10)
	f.oracle[testLoan] = StatusPending
	if _, err := f.engine.Vote(context.Background(), testLoan, stakerA, SideYes, big.NewInt(10)); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected unsubmitted loan rejection, got %v", err)
	}
	f.submit(t)
	f.oracle[testLoan] = StatusRunning
	if _, err := f.engine.Vote(context.Background(), testLoan, stakerA, SideYes, big.NewInt(10)); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected running loan rejection, got %v", err)
	}
}

func TestVoteRequiresAllowance(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.token.mint(stakerA, 10)
	if _, err := f.engine.Vote(context.Background(), testLoan, stakerA, SideYes, big.NewInt(10)); err == nil {
		t.Fatalf("expected allowance failure")
	}
}

func TestWithdrawRejections(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 100)

	_, err := f.engine.Withdraw(context.Background(), testLoan, stakerA, big.NewInt(101))
	if !errors.Is(err, ErrOverWithdrawn) || KindOf(err) != KindConservation {
		t.Fatalf("expected over-withdraw, got %v", err)
	}
	if _, err := f.engine.Withdraw(context.Background(), testLoan, stakerA, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	f.oracle[testLoan] = StatusRunning
	_, err = f.engine.Withdraw(context.Background(), testLoan, stakerA, big.NewInt(1))
	if !errors.Is(err, ErrLoanRunning) || KindOf(err) != KindState {
		t.Fatalf("expected running error, got %v", err)
	}

	other := addr(0x77)
	f.oracle[other] = StatusVoid
	if _, err := f.engine.Withdraw(context.Background(), other, stakerA, big.NewInt(1)); !errors.Is(err, ErrLoanVoid) {
		t.Fatalf("expected void error, got %v", err)
	}
}

func TestPendingWithdrawalKeepsAggregateInvariant(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 700)
	f.vote(t, stakerB, SideNo, 300)
	f.vote(t, stakerC, SideYes, 50)
	f.withdraw(t, stakerA, 200)
	f.withdraw(t, stakerB, 300)

	var sum big.Int
	for _, staker := range [][20]byte{stakerA, stakerB, stakerC} {
		vote, err := f.engine.VoteOf(testLoan, staker)
		if err != nil {
			t.Fatalf("vote of: %v", err)
		}
		sum.Add(&sum, vote.Yes)
		sum.Add(&sum, vote.No)
	}
	loan, err := f.engine.Loan(testLoan)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	total := new(big.Int).Add(loan.TotalYes, loan.TotalNo)
	if total.Cmp(&sum) != 0 || loan.Escrowed.Cmp(&sum) != 0 {
		t.Fatalf("aggregate %s escrow %s != votes %s", total, loan.Escrowed, &sum)
	}
	requireBig(t, "custody", f.token.balance(f.custody), sum.Int64())
}

func TestResolutionCapturedOnce(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000)
	f.vote(t, stakerB, SideNo, 1_000)
	f.oracle[testLoan] = StatusSettled
	f.now += 10

	first := f.withdraw(t, stakerA, 400)
	res, ok, err := f.engine.Resolution(testLoan)
	if err != nil || !ok {
		t.Fatalf("resolution missing: %v", err)
	}
	requireBig(t, "frozen yes", res.TotalYes, 1_000)
	requireBig(t, "frozen no", res.TotalNo, 1_000)
	if res.CapturedAt != f.now || res.Outcome != StatusSettled {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	f.now += 10
	second := f.withdraw(t, stakerA, 400)
	if first.Payout.Cmp(second.Payout) != 0 {
		t.Fatalf("tranches diverged: %s vs %s", first.Payout, second.Payout)
	}
	res2, _, _ := f.engine.Resolution(testLoan)
	if res2.CapturedAt != res.CapturedAt {
		t.Fatalf("resolution recaptured")
	}
	loan, _ := f.engine.Loan(testLoan)
	requireBig(t, "aggregate untouched", loan.TotalYes, 1_000)

	captured := 0
	for _, typ := range f.emitter.types() {
		if typ == EventTypeResolutionCaptured {
			captured++
		}
	}
	if captured != 1 {
		t.Fatalf("expected one capture event, got %d", captured)
	}
}

func TestResolutionOutlivesOracleRegression(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000_000)
	f.vote(t, stakerC, SideYes, 1_000_000)
	f.vote(t, stakerB, SideNo, 1_000_000)
	f.oracle[testLoan] = StatusSettled

	requireBig(t, "first winner", f.withdraw(t, stakerA, 1_000_000).Payout, 1_093_750)

	f.oracle[testLoan] = StatusPending
	status, err := f.engine.Status(context.Background(), testLoan)
	if err != nil || status != StatusSettled {
		t.Fatalf("expected frozen settled status, got %s (%v)", status, err)
	}
	loser := f.withdraw(t, stakerB, 1_000_000)
	if loser.Rule != RuleLoser {
		t.Fatalf("expected loser rule, got %s", loser.Rule)
	}
	requireBig(t, "loser payout", loser.Payout, 750_000)
	requireBig(t, "loser burn", loser.Burn, 62_500)

	f.fund(t, stakerC, 10)
	if _, err := f.engine.Vote(context.Background(), testLoan, stakerC, SideYes, big.NewInt(10)); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected vote on resolved loan to fail, got %v", err)
	}
	if _, err := f.engine.Retract(context.Background(), testLoan, testCreator); !errors.Is(err, ErrLoanNotPending) {
		t.Fatalf("expected retract on resolved loan to fail, got %v", err)
	}

	f.oracle[testLoan] = StatusRunning
	requireBig(t, "second winner", f.withdraw(t, stakerC, 1_000_000).Payout, 1_093_750)
	requireBig(t, "custody drained", f.token.balance(f.custody), 0)
}

func TestResolvedLoanCannotBeResubmitted(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 100)
	f.oracle[testLoan] = StatusDefaulted
	f.withdraw(t, stakerA, 100)

	loan := f.state.loans[testLoan]
	loan.Creator = [20]byte{}
	f.oracle[testLoan] = StatusPending
	_, err := f.engine.Submit(context.Background(), testLoan, testCreator)
	if !errors.Is(err, ErrLoanTerminal) || KindOf(err) != KindState {
		t.Fatalf("expected terminal loan error, got %v", err)
	}
}

func TestParamsApplyAtWithdrawalTime(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideNo, 1_000_000)
	f.vote(t, stakerB, SideYes, 1_000_000)
	f.oracle[testLoan] = StatusSettled

	requireBig(t, "loser first half", f.withdraw(t, stakerA, 500_000).Payout, 375_000)
	f.setParams(t, 1_000, 5_000)
	requireBig(t, "loser second half", f.withdraw(t, stakerA, 500_000).Payout, 450_000)
}

func TestQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000_000)
	f.vote(t, stakerB, SideNo, 1_000_000)
	f.oracle[testLoan] = StatusSettled

	quote, err := f.engine.Quote(context.Background(), testLoan, stakerB, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	requireBig(t, "quoted payout", quote.Payout, 750_000)
	requireBig(t, "quoted burn", quote.Burn, 62_500)
	if len(quote.Effects) != 2 || quote.Effects[0].Kind != EffectPayout || quote.Effects[1].Kind != EffectBurn {
		t.Fatalf("unexpected effects: %+v", quote.Effects)
	}
	if _, ok, _ := f.engine.Resolution(testLoan); ok {
		t.Fatalf("quote captured a resolution")
	}
	no, _ := f.engine.NoVote(testLoan, stakerB)
	requireBig(t, "vote untouched", no, 1_000_000)
}

func TestDistinctSettlementToken(t *testing.T) {
	f := newFixture(t)
	usd := newMockToken("USDX")
	usd.mint(f.custody, 10_000_000)
	f.engine.SetTokens(f.token, usd)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000_000)
	f.vote(t, stakerB, SideNo, 1_000_000)
	f.oracle[testLoan] = StatusDefaulted

	settlement := f.withdraw(t, stakerA, 1_000_000)
	requireBig(t, "usd payout", usd.balance(stakerA), 750_000)
	requireBig(t, "stake burn", settlement.Burn, 62_500)
	requireBig(t, "stake custody after burn", f.token.balance(f.custody), 2_000_000-62_500)
	if settlement.Effects[0].Asset != "USDX" || settlement.Effects[1].Asset != "STAKE" {
		t.Fatalf("unexpected assets: %+v", settlement.Effects)
	}
}

func TestReentrantWithdrawRejected(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.vote(t, stakerA, SideYes, 1_000)

	var inner error
	f.token.onTransfer = func(from, to [20]byte, amount *big.Int) {
		if to != stakerA {
			return
		}
		_, inner = f.engine.Withdraw(context.Background(), testLoan, stakerA, big.NewInt(1_000))
	}
	f.withdraw(t, stakerA, 1_000)
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("expected reentrancy rejection, got %v", inner)
	}
	requireBig(t, "single refund", f.token.balance(stakerA), 1_000)
	yes, _ := f.engine.YesVote(testLoan, stakerA)
	requireBig(t, "vote cleared", yes, 0)
}

func TestParameterAdministration(t *testing.T) {
	f := newFixture(t)
	err := f.engine.SetLossFactor(stakerA, 100)
	if !errors.Is(err, ErrNotAdmin) || KindOf(err) != KindAuthorization {
		t.Fatalf("expected admin error, got %v", err)
	}
	if err := f.engine.SetBurnFactor(f.admin, 10_001); !errors.Is(err, ErrInvalidBasisPoints) {
		t.Fatalf("expected bounds error, got %v", err)
	}
	if err := f.engine.SetLossFactor(f.admin, 10_000); err != nil {
		t.Fatalf("set loss factor: %v", err)
	}
	if err := f.engine.SetBurnFactor(f.admin, 0); err != nil {
		t.Fatalf("set burn factor: %v", err)
	}
	current, err := f.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if current.LossFactorBps != 10_000 || current.BurnFactorBps != 0 {
		t.Fatalf("unexpected params: %+v", current)
	}
	if len(f.emitter.events) != 2 {
		t.Fatalf("expected two events, got %d", len(f.emitter.events))
	}
	evt := f.emitter.events[0].(eventEnvelope).evt
	if evt.Attributes["param"] != paramLossFactor || evt.Attributes["previous"] != "2500" || evt.Attributes["value"] != "10000" {
		t.Fatalf("unexpected event attrs: %+v", evt.Attributes)
	}
}

func TestStatusOverlay(t *testing.T) {
	submitted := &Loan{SubmittedAt: 1}
	active := &Loan{SubmittedAt: 1, Creator: testCreator}
	cases := []struct {
		raw  LoanStatus
		loan *Loan
		want LoanStatus
	}{
		{StatusPending, nil, StatusVoid},
		{StatusVoid, nil, StatusVoid},
		{StatusPending, submitted, StatusRetracted},
		{StatusVoid, submitted, StatusRetracted},
		{StatusPending, active, StatusPending},
		{StatusRunning, submitted, StatusRunning},
		{StatusSettled, nil, StatusSettled},
		{StatusDefaulted, active, StatusDefaulted},
	}
	for _, tc := range cases {
		if got := OverlayStatus(tc.raw, tc.loan); got != tc.want {
			t.Fatalf("overlay(%s, %+v) = %s, want %s", tc.raw, tc.loan, got, tc.want)
		}
	}
}

func TestOracleFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.engine.SetOracle(OracleFunc(func(context.Context, [20]byte) (LoanStatus, error) {
		return StatusVoid, errors.New("rpc down")
	}))
	_, err := f.engine.Submit(context.Background(), testLoan, testCreator)
	if !errors.Is(err, ErrOracleUnavailable) || KindOf(err) != KindUnavailable {
		t.Fatalf("expected oracle error, got %v", err)
	}
}
