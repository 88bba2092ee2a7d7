package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for administrator-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetRedistribution validates and persists the redistribution parameters under
// the canonical parameter store key. Values are marshalled as JSON so operators
// can inspect them with the same encoding the API uses.
func (s *Store) SetRedistribution(value Redistribution) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := value.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode redistribution: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyRedistribution, encoded)
}

// Redistribution loads the persisted redistribution parameters. When unset,
// the defaults are returned.
func (s *Store) Redistribution() (Redistribution, error) {
	state, err := s.withState()
	if err != nil {
		return Redistribution{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyRedistribution)
	if err != nil {
		return Redistribution{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return DefaultRedistribution(), nil
	}
	var value Redistribution
	if err := json.Unmarshal(raw, &value); err != nil {
		return Redistribution{}, fmt.Errorf("params: decode redistribution: %w", err)
	}
	if err := value.Validate(); err != nil {
		return Redistribution{}, err
	}
	return value, nil
}
