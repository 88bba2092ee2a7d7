package state

import (
	"fmt"
	"math/big"
	"sort"
)

// TokenMetadata describes a token registered with the ledger.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// RegisterToken stores the metadata for a token and records it in the token
// index. Registering the same symbol twice is an error.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if exists, err := m.KVGet(tokenMetadataKey(normalized), nil); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("token %s already registered", normalized)
	}
	var list []string
	if err := m.KVGetList(tokenListKey, &list); err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.KVPut(tokenListKey, list); err != nil {
		return err
	}
	return m.KVPut(tokenMetadataKey(normalized), &TokenMetadata{Symbol: normalized, Name: name, Decimals: decimals})
}

// Token retrieves metadata for a registered token.
func (m *Manager) Token(symbol string) (*TokenMetadata, bool, error) {
	meta := new(TokenMetadata)
	ok, err := m.KVGet(tokenMetadataKey(symbol), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

// TokenList returns all registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	var list []string
	if err := m.KVGetList(tokenListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount not allowed")
	}
	if amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

// TokenBalance returns the balance of owner. Missing entries read as zero.
func (m *Manager) TokenBalance(symbol string, owner [20]byte) (*big.Int, error) {
	return m.loadAmount(TokenBalanceKey(symbol, owner))
}

// SetTokenBalance overwrites the balance of owner.
func (m *Manager) SetTokenBalance(symbol string, owner [20]byte, amount *big.Int) error {
	return m.storeAmount(TokenBalanceKey(symbol, owner), amount)
}

// TokenAllowance returns the amount spender may transfer on behalf of owner.
func (m *Manager) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	return m.loadAmount(TokenAllowanceKey(symbol, owner, spender))
}

// SetTokenAllowance overwrites the allowance granted by owner to spender.
func (m *Manager) SetTokenAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return m.storeAmount(TokenAllowanceKey(symbol, owner, spender), amount)
}

// TokenSupply returns the persisted total supply for the provided token.
// Missing entries default to zero.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	if normalizeSymbol(symbol) == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	return m.loadAmount(tokenSupplyKey(symbol))
}

// SetTokenSupply overwrites the stored total supply for the token.
func (m *Manager) SetTokenSupply(symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol required")
	}
	if amount != nil && amount.Sign() < 0 {
		return fmt.Errorf("token %s supply cannot be negative", normalized)
	}
	return m.storeAmount(tokenSupplyKey(normalized), amount)
}

// AdjustTokenSupply increments the stored total supply by the supplied delta
// and returns the updated total.
func (m *Manager) AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	if delta == nil {
		delta = big.NewInt(0)
	}
	current, err := m.TokenSupply(normalized)
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("token %s supply underflow", normalized)
	}
	if err := m.storeAmount(tokenSupplyKey(normalized), updated); err != nil {
		return nil, err
	}
	return updated, nil
}
