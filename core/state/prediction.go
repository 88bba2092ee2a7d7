package state

import (
	"fmt"
	"math/big"

	"stakeoracle/native/prediction"
)

type storedLoan struct {
	Address     [20]byte
	Creator     [20]byte
	SubmittedAt uint64
	TotalYes    *big.Int
	TotalNo     *big.Int
	Escrowed    *big.Int
}

type storedVote struct {
	Loan   [20]byte
	Staker [20]byte
	Yes    *big.Int
	No     *big.Int
}

type storedResolution struct {
	Loan       [20]byte
	Outcome    uint8
	TotalYes   *big.Int
	TotalNo    *big.Int
	CapturedAt uint64
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func toUnix(ts int64) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("prediction state: negative timestamp %d", ts)
	}
	return uint64(ts), nil
}

// PredictionLoanGet loads the registry record for loan.
func (m *Manager) PredictionLoanGet(loan [20]byte) (*prediction.Loan, bool, error) {
	var stored storedLoan
	ok, err := m.KVGet(PredictionLoanKey(loan), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &prediction.Loan{
		Address:     stored.Address,
		Creator:     stored.Creator,
		SubmittedAt: int64(stored.SubmittedAt),
		TotalYes:    nonNil(stored.TotalYes),
		TotalNo:     nonNil(stored.TotalNo),
		Escrowed:    nonNil(stored.Escrowed),
	}, true, nil
}

// PredictionLoanPut persists the registry record for a loan.
func (m *Manager) PredictionLoanPut(loan *prediction.Loan) error {
	if loan == nil {
		return fmt.Errorf("prediction state: nil loan")
	}
	submitted, err := toUnix(loan.SubmittedAt)
	if err != nil {
		return err
	}
	return m.KVPut(PredictionLoanKey(loan.Address), &storedLoan{
		Address:     loan.Address,
		Creator:     loan.Creator,
		SubmittedAt: submitted,
		TotalYes:    nonNil(loan.TotalYes),
		TotalNo:     nonNil(loan.TotalNo),
		Escrowed:    nonNil(loan.Escrowed),
	})
}

// PredictionLoanIndexAppend records loan in the submission index once.
func (m *Manager) PredictionLoanIndexAppend(loan [20]byte) error {
	return m.KVAppend(predictionLoanIndexKey, loan[:])
}

// PredictionLoanIndex lists every indexed loan in first-submission order.
func (m *Manager) PredictionLoanIndex() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(predictionLoanIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("prediction state: malformed loan index entry")
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// PredictionVoteGet loads the staker's position on loan.
func (m *Manager) PredictionVoteGet(loan, staker [20]byte) (*prediction.Vote, bool, error) {
	var stored storedVote
	ok, err := m.KVGet(PredictionVoteKey(loan, staker), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &prediction.Vote{
		Loan:   stored.Loan,
		Staker: stored.Staker,
		Yes:    nonNil(stored.Yes),
		No:     nonNil(stored.No),
	}, true, nil
}

// PredictionVotePut persists a staker position.
func (m *Manager) PredictionVotePut(vote *prediction.Vote) error {
	if vote == nil {
		return fmt.Errorf("prediction state: nil vote")
	}
	return m.KVPut(PredictionVoteKey(vote.Loan, vote.Staker), &storedVote{
		Loan:   vote.Loan,
		Staker: vote.Staker,
		Yes:    nonNil(vote.Yes),
		No:     nonNil(vote.No),
	})
}

// PredictionResolutionGet loads the frozen terminal record for loan.
func (m *Manager) PredictionResolutionGet(loan [20]byte) (*prediction.Resolution, bool, error) {
	var stored storedResolution
	ok, err := m.KVGet(PredictionResolutionKey(loan), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &prediction.Resolution{
		Loan:       stored.Loan,
		Outcome:    prediction.LoanStatus(stored.Outcome),
		TotalYes:   nonNil(stored.TotalYes),
		TotalNo:    nonNil(stored.TotalNo),
		CapturedAt: int64(stored.CapturedAt),
	}, true, nil
}

// PredictionResolutionPut persists a resolution. Existing resolutions are
// immutable.
func (m *Manager) PredictionResolutionPut(res *prediction.Resolution) error {
	if res == nil {
		return fmt.Errorf("prediction state: nil resolution")
	}
	if exists, err := m.KVGet(PredictionResolutionKey(res.Loan), nil); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("prediction state: resolution for loan already captured")
	}
	captured, err := toUnix(res.CapturedAt)
	if err != nil {
		return err
	}
	return m.KVPut(PredictionResolutionKey(res.Loan), &storedResolution{
		Loan:       res.Loan,
		Outcome:    uint8(res.Outcome),
		TotalYes:   nonNil(res.TotalYes),
		TotalNo:    nonNil(res.TotalNo),
		CapturedAt: captured,
	})
}
