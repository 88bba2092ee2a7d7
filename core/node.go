package core

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"stakeoracle/core/events"
	"stakeoracle/core/state"
	"stakeoracle/native/bank"
	"stakeoracle/native/params"
	"stakeoracle/native/prediction"
	"stakeoracle/observability"
	"stakeoracle/storage"
)

// StatusSetter is implemented by oracles whose reports can be changed by an
// operator, such as the static development oracle.
type StatusSetter interface {
	Set(loan [20]byte, status prediction.LoanStatus) error
}

// NodeConfig wires the accounts, tokens and oracle used by a Node.
type NodeConfig struct {
	Admin            [20]byte
	Custody          [20]byte
	StakeSymbol      string
	SettlementSymbol string
	Oracle           prediction.Oracle
	// OracleControl, when set, lets the administrator override reported
	// statuses. Production oracles leave it nil.
	OracleControl    StatusSetter
	// Now overrides the clock used for submission timestamps.
	Now              func() int64
}

// Node is the central controller. Every operation runs against a fresh
// transaction over the committed state while holding stateMu, so calls are
// atomic with respect to each other and rejected calls leave nothing behind.
type Node struct {
	db               storage.Database
	root             *state.Manager
	stateMu          sync.Mutex
	oracle           prediction.Oracle
	control          StatusSetter
	admin            [20]byte
	custody          [20]byte
	stakeSymbol      string
	settlementSymbol string
	nowFn            func() int64
	feed             *events.Feed
	metrics          *observability.PredictionMetrics
}

// NewNode constructs a node over db.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if cfg.Oracle == nil {
		return nil, errNilOracle
	}
	if cfg.Admin == ([20]byte{}) {
		return nil, fmt.Errorf("%w: admin", prediction.ErrInvalidAddress)
	}
	if cfg.Custody == ([20]byte{}) {
		return nil, fmt.Errorf("%w: custody", prediction.ErrInvalidAddress)
	}
	stake := strings.ToUpper(strings.TrimSpace(cfg.StakeSymbol))
	if stake == "" {
		return nil, fmt.Errorf("stake token symbol required")
	}
	settlement := strings.ToUpper(strings.TrimSpace(cfg.SettlementSymbol))
	if settlement == "" {
		settlement = stake
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	return &Node{
		db:               db,
		root:             state.NewManager(db),
		oracle:           cfg.Oracle,
		control:          cfg.OracleControl,
		admin:            cfg.Admin,
		custody:          cfg.Custody,
		stakeSymbol:      stake,
		settlementSymbol: settlement,
		nowFn:            nowFn,
		feed:             events.NewFeed(),
		metrics:          observability.Prediction(),
	}, nil
}

// Events exposes the feed receiving every committed event.
func (n *Node) Events() *events.Feed { return n.feed }

// Admin returns the administrator account.
func (n *Node) Admin() [20]byte { return n.admin }

// Custody returns the account holding staked tokens.
func (n *Node) Custody() [20]byte { return n.custody }

// StakeSymbol returns the symbol of the stake token.
func (n *Node) StakeSymbol() string { return n.stakeSymbol }

// SettlementSymbol returns the symbol payouts are delivered in.
func (n *Node) SettlementSymbol() string { return n.settlementSymbol }

type session struct {
	tx         *state.Manager
	engine     *prediction.Engine
	stake      *bank.Token
	settlement *bank.Token
	buffer     *events.Buffer
	transfers  []string
}

func (n *Node) newSession() *session {
	tx := n.root.Begin()
	s := &session{tx: tx, buffer: events.NewBuffer()}
	s.stake = n.newToken(n.stakeSymbol, s)
	s.settlement = s.stake
	if n.settlementSymbol != n.stakeSymbol {
		s.settlement = n.newToken(n.settlementSymbol, s)
	}
	engine := prediction.NewEngine()
	engine.SetState(tx)
	engine.SetParams(params.NewStore(tx))
	engine.SetOracle(n.oracle)
	engine.SetTokens(s.stake, s.settlement)
	engine.SetEmitter(s.buffer)
	engine.SetNowFunc(n.nowFn)
	engine.SetAdmin(n.admin)
	engine.SetCustody(n.custody)
	s.engine = engine
	return s
}

func (n *Node) newToken(symbol string, s *session) *bank.Token {
	token := bank.NewToken(symbol, s.tx)
	token.SetEmitter(s.buffer)
	token.AddHook(func(_, _ [20]byte, _ *big.Int) error {
		s.transfers = append(s.transfers, symbol)
		return nil
	})
	return token
}

// mutate runs fn inside a transaction. The transaction commits and buffered
// events reach the feed only when fn succeeds.
func (n *Node) mutate(op string, fn func(s *session) error) error {
	start := time.Now()
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	s := n.newSession()
	if err := fn(s); err != nil {
		s.tx.Discard()
		n.metrics.ObserveOperation(op, prediction.KindOf(err).String(), time.Since(start))
		return err
	}
	if err := s.tx.Commit(); err != nil {
		n.metrics.ObserveOperation(op, "commit", time.Since(start))
		return fmt.Errorf("commit %s: %w", op, err)
	}
	s.buffer.Flush(n.feed)
	for _, symbol := range s.transfers {
		n.metrics.RecordTransfer(symbol)
	}
	n.recordCustody()
	n.metrics.ObserveOperation(op, "success", time.Since(start))
	return nil
}

// read runs fn against a throwaway transaction.
func (n *Node) read(fn func(s *session) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	s := n.newSession()
	defer s.tx.Discard()
	return fn(s)
}

func (n *Node) recordCustody() {
	for _, symbol := range n.symbols() {
		balance, err := n.root.TokenBalance(symbol, n.custody)
		if err != nil {
			continue
		}
		n.metrics.RecordCustody(symbol, balance)
	}
}

func (n *Node) symbols() []string {
	if n.settlementSymbol == n.stakeSymbol {
		return []string{n.stakeSymbol}
	}
	return []string{n.stakeSymbol, n.settlementSymbol}
}

// Submit registers loan with creator as its submitter.
func (n *Node) Submit(ctx context.Context, loan, creator [20]byte) (*prediction.Loan, error) {
	var out *prediction.Loan
	err := n.mutate("submit", func(s *session) error {
		var err error
		out, err = s.engine.Submit(ctx, loan, creator)
		return err
	})
	return out, err
}

// Retract withdraws a pending loan on behalf of its creator.
func (n *Node) Retract(ctx context.Context, loan, caller [20]byte) (*prediction.Loan, error) {
	var out *prediction.Loan
	err := n.mutate("retract", func(s *session) error {
		var err error
		out, err = s.engine.Retract(ctx, loan, caller)
		return err
	})
	return out, err
}

// Vote stakes amount on side of loan.
func (n *Node) Vote(ctx context.Context, loan, staker [20]byte, side prediction.Side, amount *big.Int) (*prediction.Vote, error) {
	var out *prediction.Vote
	err := n.mutate("vote", func(s *session) error {
		var err error
		out, err = s.engine.Vote(ctx, loan, staker, side, amount)
		return err
	})
	return out, err
}

// Withdraw settles amount of the staker's position.
func (n *Node) Withdraw(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*prediction.Settlement, error) {
	var out *prediction.Settlement
	err := n.mutate("withdraw", func(s *session) error {
		var err error
		out, err = s.engine.Withdraw(ctx, loan, staker, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordSettlement(n.settlementSymbol, string(out.Rule), out.Payout, n.stakeSymbol, out.Burn)
	return out, nil
}

// Quote previews a withdrawal without changing state.
func (n *Node) Quote(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*prediction.Settlement, error) {
	var out *prediction.Settlement
	err := n.read(func(s *session) error {
		var err error
		out, err = s.engine.Quote(ctx, loan, staker, amount)
		return err
	})
	return out, err
}

// SetLossFactor updates the loss factor.
func (n *Node) SetLossFactor(caller [20]byte, bps uint32) error {
	return n.mutate("set_loss_factor", func(s *session) error {
		return s.engine.SetLossFactor(caller, bps)
	})
}

// SetBurnFactor updates the burn factor.
func (n *Node) SetBurnFactor(caller [20]byte, bps uint32) error {
	return n.mutate("set_burn_factor", func(s *session) error {
		return s.engine.SetBurnFactor(caller, bps)
	})
}

// SetParams updates both factors atomically. Nil values are left unchanged.
func (n *Node) SetParams(caller [20]byte, lossBps, burnBps *uint32) (params.Redistribution, error) {
	var out params.Redistribution
	err := n.mutate("set_params", func(s *session) error {
		if lossBps != nil {
			if err := s.engine.SetLossFactor(caller, *lossBps); err != nil {
				return err
			}
		}
		if burnBps != nil {
			if err := s.engine.SetBurnFactor(caller, *burnBps); err != nil {
				return err
			}
		}
		var err error
		out, err = s.engine.Params()
		return err
	})
	return out, err
}

// Params returns the current redistribution factors.
func (n *Node) Params() (params.Redistribution, error) {
	var out params.Redistribution
	err := n.read(func(s *session) error {
		var err error
		out, err = s.engine.Params()
		return err
	})
	return out, err
}

// View returns the loan record with its effective status.
func (n *Node) View(ctx context.Context, loan [20]byte) (*prediction.LoanView, error) {
	var out *prediction.LoanView
	err := n.read(func(s *session) error {
		var err error
		out, err = s.engine.View(ctx, loan)
		return err
	})
	return out, err
}

// Loans lists every loan ever submitted in submission order.
func (n *Node) Loans() ([][20]byte, error) {
	var out [][20]byte
	err := n.read(func(s *session) error {
		var err error
		out, err = s.engine.Loans()
		return err
	})
	return out, err
}

// VoteOf returns the staker's position on loan.
func (n *Node) VoteOf(loan, staker [20]byte) (*prediction.Vote, error) {
	var out *prediction.Vote
	err := n.read(func(s *session) error {
		var err error
		out, err = s.engine.VoteOf(loan, staker)
		return err
	})
	return out, err
}

// Resolution returns the frozen settlement snapshot for loan, if taken.
func (n *Node) Resolution(loan [20]byte) (*prediction.Resolution, bool, error) {
	var (
		out *prediction.Resolution
		ok  bool
	)
	err := n.read(func(s *session) error {
		var err error
		out, ok, err = s.engine.Resolution(loan)
		return err
	})
	return out, ok, err
}

// Approve sets the stake token allowance owner grants the custody account.
func (n *Node) Approve(owner [20]byte, amount *big.Int) error {
	return n.mutate("approve", func(s *session) error {
		if amount == nil || amount.Sign() < 0 {
			return prediction.ErrInvalidAmount
		}
		return s.stake.Approve(owner, n.custody, amount)
	})
}

// Balance describes an account's holdings in one token.
type Balance struct {
	Symbol    string   `json:"symbol"`
	Balance   *big.Int `json:"balance"`
	Allowance *big.Int `json:"allowance,omitempty"`
}

// Balances returns the holdings of addr in every registered token together
// with the allowance granted to custody.
func (n *Node) Balances(addr [20]byte) ([]Balance, error) {
	var out []Balance
	err := n.read(func(s *session) error {
		symbols, err := s.tx.TokenList()
		if err != nil {
			return err
		}
		for _, symbol := range symbols {
			token := bank.NewToken(symbol, s.tx)
			balance, err := token.BalanceOf(addr)
			if err != nil {
				return err
			}
			allowance, err := token.Allowance(addr, n.custody)
			if err != nil {
				return err
			}
			out = append(out, Balance{Symbol: symbol, Balance: balance, Allowance: allowance})
		}
		return nil
	})
	return out, err
}

// Supply describes a token's circulating supply and the share held in custody.
type Supply struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals uint8    `json:"decimals"`
	Total    *big.Int `json:"total"`
	Custody  *big.Int `json:"custody"`
}

// Supplies reports supply and custody balances for every registered token.
func (n *Node) Supplies() ([]Supply, error) {
	var out []Supply
	err := n.read(func(s *session) error {
		symbols, err := s.tx.TokenList()
		if err != nil {
			return err
		}
		for _, symbol := range symbols {
			meta, ok, err := s.tx.Token(symbol)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
			}
			token := bank.NewToken(symbol, s.tx)
			total, err := token.TotalSupply()
			if err != nil {
				return err
			}
			held, err := token.BalanceOf(n.custody)
			if err != nil {
				return err
			}
			out = append(out, Supply{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals, Total: total, Custody: held})
		}
		return nil
	})
	return out, err
}

// SetOracleStatus changes the status reported for loan by an operator
// controlled oracle. Only the administrator may call it. Overrides are
// published like any other committed event.
func (n *Node) SetOracleStatus(caller, loan [20]byte, status prediction.LoanStatus) error {
	return n.mutate("set_oracle_status", func(s *session) error {
		if caller != n.admin {
			return prediction.ErrNotAdmin
		}
		if n.control == nil {
			return ErrOracleReadOnly
		}
		if err := n.control.Set(loan, status); err != nil {
			return err
		}
		s.buffer.Emit(prediction.WrapEvent(prediction.OracleOverrideEvent(loan, status, caller)))
		return nil
	})
}
