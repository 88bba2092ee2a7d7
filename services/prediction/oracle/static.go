package oracle

import (
	"context"
	"fmt"
	"sync"

	"stakeoracle/native/prediction"
)

// Static is an in-memory loan oracle for development and staging
// deployments. Loans that were never set report Void.
type Static struct {
	mu       sync.RWMutex
	statuses map[[20]byte]prediction.LoanStatus
}

// NewStatic returns an empty static oracle.
func NewStatic() *Static {
	return &Static{statuses: make(map[[20]byte]prediction.LoanStatus)}
}

// LoanStatus implements prediction.Oracle.
func (s *Static) LoanStatus(_ context.Context, loan [20]byte) (prediction.LoanStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[loan], nil
}

// Set records the external status of loan. Only statuses a loan contract can
// report are accepted, and a Settled or Defaulted loan keeps its status.
func (s *Static) Set(loan [20]byte, status prediction.LoanStatus) error {
	if !status.External() {
		return prediction.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.statuses[loan]; current.Terminal() && current != status {
		return fmt.Errorf("%w: %s", prediction.ErrLoanTerminal, current)
	}
	s.statuses[loan] = status
	return nil
}
