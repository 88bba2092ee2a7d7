package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"stakeoracle/core/events"
)

var (
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrAmountOverflow        = errors.New("bank: amount exceeds 256 bits")
	errNilState              = errors.New("bank: state not configured")
)

// LedgerState is the storage surface required by Token.
type LedgerState interface {
	TokenBalance(symbol string, owner [20]byte) (*big.Int, error)
	SetTokenBalance(symbol string, owner [20]byte, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
}

// TransferHook runs after a balance movement has been written. A hook error
// fails the transfer; the caller's transaction is expected to roll back.
type TransferHook func(from, to [20]byte, amount *big.Int) error

// Token is a fungible ledger keyed by symbol. Arithmetic is checked against
// 256-bit overflow to match the amounts an EVM token can represent.
type Token struct {
	symbol  string
	state   LedgerState
	emitter events.Emitter
	hooks   []TransferHook
}

// NewToken constructs a token ledger for symbol.
func NewToken(symbol string, state LedgerState) *Token {
	return &Token{
		symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		state:   state,
		emitter: events.NoopEmitter{},
	}
}

// SetState swaps the state backend, typically for a transaction overlay.
func (t *Token) SetState(state LedgerState) { t.state = state }

// SetEmitter configures the event emitter used by the token.
func (t *Token) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// AddHook registers a transfer hook.
func (t *Token) AddHook(hook TransferHook) {
	if hook != nil {
		t.hooks = append(t.hooks, hook)
	}
}

// Symbol returns the normalised token symbol.
func (t *Token) Symbol() string { return t.symbol }

// BalanceOf returns the balance held by owner.
func (t *Token) BalanceOf(owner [20]byte) (*big.Int, error) {
	if t.state == nil {
		return nil, errNilState
	}
	return t.state.TokenBalance(t.symbol, owner)
}

// Allowance returns the amount spender may move on behalf of owner.
func (t *Token) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if t.state == nil {
		return nil, errNilState
	}
	return t.state.TokenAllowance(t.symbol, owner, spender)
}

// TotalSupply returns the circulating supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	if t.state == nil {
		return nil, errNilState
	}
	return t.state.TokenSupply(t.symbol)
}

// Approve overwrites the allowance owner grants spender.
func (t *Token) Approve(owner, spender [20]byte, amount *big.Int) error {
	if t.state == nil {
		return errNilState
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if err := t.state.SetTokenAllowance(t.symbol, owner, spender, value.ToBig()); err != nil {
		return err
	}
	t.emit(events.Approval{Asset: t.symbol, Owner: owner, Spender: spender, Amount: value.ToBig()})
	return nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(from, to [20]byte, amount *big.Int) error {
	if t.state == nil {
		return errNilState
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return t.move(from, to, value)
}

// TransferFrom moves amount out of from using the allowance granted to
// spender.
func (t *Token) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if t.state == nil {
		return errNilState
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	current, err := t.state.TokenAllowance(t.symbol, from, spender)
	if err != nil {
		return err
	}
	allowance, err := toUint256(current)
	if err != nil {
		return err
	}
	remaining, underflow := new(uint256.Int).SubOverflow(allowance, value)
	if underflow {
		return fmt.Errorf("%w: %s allowance %s below %s", ErrInsufficientAllowance, t.symbol, allowance.Dec(), value.Dec())
	}
	if err := t.state.SetTokenAllowance(t.symbol, from, spender, remaining.ToBig()); err != nil {
		return err
	}
	return t.move(from, to, value)
}

// Mint credits amount to the recipient and grows the supply.
func (t *Token) Mint(to [20]byte, amount *big.Int) error {
	if t.state == nil {
		return errNilState
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if err := t.credit(to, value); err != nil {
		return err
	}
	total, err := t.state.AdjustTokenSupply(t.symbol, value.ToBig())
	if err != nil {
		return err
	}
	if _, overflow := uint256.FromBig(total); overflow {
		return ErrAmountOverflow
	}
	t.emit(events.TokenSupply{Asset: t.symbol, Account: to, Total: total, Delta: value.ToBig(), Reason: events.SupplyReasonMint})
	return nil
}

// Burn destroys amount held by holder and shrinks the supply.
func (t *Token) Burn(holder [20]byte, amount *big.Int) error {
	if t.state == nil {
		return errNilState
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if err := t.debit(holder, value); err != nil {
		return err
	}
	total, err := t.state.AdjustTokenSupply(t.symbol, new(big.Int).Neg(value.ToBig()))
	if err != nil {
		return err
	}
	t.emit(events.TokenSupply{Asset: t.symbol, Account: holder, Total: total, Delta: new(big.Int).Neg(value.ToBig()), Reason: events.SupplyReasonBurn})
	return nil
}

func (t *Token) move(from, to [20]byte, value *uint256.Int) error {
	if err := t.debit(from, value); err != nil {
		return err
	}
	if err := t.credit(to, value); err != nil {
		return err
	}
	t.emit(events.Transfer{Asset: t.symbol, From: from, To: to, Amount: value.ToBig()})
	for _, hook := range t.hooks {
		if err := hook(from, to, value.ToBig()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Token) debit(owner [20]byte, value *uint256.Int) error {
	current, err := t.state.TokenBalance(t.symbol, owner)
	if err != nil {
		return err
	}
	balance, err := toUint256(current)
	if err != nil {
		return err
	}
	updated, underflow := new(uint256.Int).SubOverflow(balance, value)
	if underflow {
		return fmt.Errorf("%w: %s balance %s below %s", ErrInsufficientBalance, t.symbol, balance.Dec(), value.Dec())
	}
	return t.state.SetTokenBalance(t.symbol, owner, updated.ToBig())
}

func (t *Token) credit(owner [20]byte, value *uint256.Int) error {
	current, err := t.state.TokenBalance(t.symbol, owner)
	if err != nil {
		return err
	}
	balance, err := toUint256(current)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(balance, value)
	if overflow {
		return ErrAmountOverflow
	}
	return t.state.SetTokenBalance(t.symbol, owner, updated.ToBig())
}

func (t *Token) emit(evt events.Event) {
	if t.emitter == nil {
		return
	}
	t.emitter.Emit(evt)
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return value, nil
}
