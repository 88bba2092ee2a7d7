package core

import (
	"fmt"
	"math/big"
	"strings"

	"stakeoracle/core/events"
	"stakeoracle/native/bank"
	"stakeoracle/native/params"
)

// GenesisToken registers a fungible token with the ledger.
type GenesisToken struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// GenesisAllocation mints an initial balance.
type GenesisAllocation struct {
	Address [20]byte
	Symbol  string
	Amount  *big.Int
}

// Genesis is the initial ledger content written on first boot.
type Genesis struct {
	Tokens      []GenesisToken
	Allocations []GenesisAllocation
	Params      *params.Redistribution
}

func (g Genesis) validate(stake, settlement string) error {
	seen := make(map[string]struct{}, len(g.Tokens))
	for _, token := range g.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("%w: token symbol required", ErrInvalidGenesis)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("%w: token %s listed twice", ErrInvalidGenesis, symbol)
		}
		seen[symbol] = struct{}{}
	}
	for _, required := range []string{stake, settlement} {
		if _, ok := seen[required]; !ok {
			return fmt.Errorf("%w: token %s not declared", ErrInvalidGenesis, required)
		}
	}
	for i, alloc := range g.Allocations {
		symbol := strings.ToUpper(strings.TrimSpace(alloc.Symbol))
		if _, ok := seen[symbol]; !ok {
			return fmt.Errorf("%w: allocation %d references unknown token %q", ErrInvalidGenesis, i, alloc.Symbol)
		}
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: allocation %d amount must be positive", ErrInvalidGenesis, i)
		}
		if alloc.Address == ([20]byte{}) {
			return fmt.Errorf("%w: allocation %d address required", ErrInvalidGenesis, i)
		}
	}
	if g.Params != nil {
		if err := g.Params.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
		}
	}
	return nil
}

// InitGenesis writes the genesis document when the ledger is empty. It reports
// whether anything was written; a node restarted over existing data keeps its
// state untouched.
func (n *Node) InitGenesis(g Genesis) (bool, error) {
	if err := g.validate(n.stakeSymbol, n.settlementSymbol); err != nil {
		return false, err
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if _, ok, err := n.root.Token(n.stakeSymbol); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	tx := n.root.Begin()
	buffer := events.NewBuffer()
	for _, token := range g.Tokens {
		if err := tx.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			tx.Discard()
			return false, err
		}
	}
	for _, alloc := range g.Allocations {
		token := bank.NewToken(alloc.Symbol, tx)
		token.SetEmitter(buffer)
		if err := token.Mint(alloc.Address, alloc.Amount); err != nil {
			tx.Discard()
			return false, fmt.Errorf("mint %s: %w", token.Symbol(), err)
		}
	}
	if g.Params != nil {
		if err := params.NewStore(tx).SetRedistribution(*g.Params); err != nil {
			tx.Discard()
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	buffer.Flush(n.feed)
	n.recordCustody()
	return true, nil
}
