package prediction

import (
	"fmt"
	"math/big"
	"strings"
)

// Side identifies which outcome a stake backs.
type Side uint8

const (
	// SideNone marks a vote record with no open stake.
	SideNone Side = iota
	// SideYes predicts the loan will be repaid.
	SideYes
	// SideNo predicts the loan will default.
	SideNo
)

// String returns the lowercase side label.
func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return "none"
	}
}

// Opposite returns the other side. SideNone has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return SideNone
	}
}

// ParseSide converts a user supplied label into a Side.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "repay", "repaid":
		return SideYes, nil
	case "no", "n", "default", "defaulted":
		return SideNo, nil
	default:
		return SideNone, fmt.Errorf("%w: %q", ErrInvalidSide, raw)
	}
}

// LoanStatus enumerates the lifecycle states observed by the engine. The first
// five mirror the external loan contract; StatusRetracted is overlaid locally.
type LoanStatus uint8

const (
	StatusVoid LoanStatus = iota
	StatusPending
	StatusRunning
	StatusSettled
	StatusDefaulted
	StatusRetracted
)

var statusNames = map[LoanStatus]string{
	StatusVoid:      "void",
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusSettled:   "settled",
	StatusDefaulted: "defaulted",
	StatusRetracted: "retracted",
}

// String returns the lowercase status label.
func (s LoanStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether the status is a resolved outcome.
func (s LoanStatus) Terminal() bool {
	return s == StatusSettled || s == StatusDefaulted
}

// External reports whether the status can be reported by a loan oracle.
func (s LoanStatus) External() bool {
	return s <= StatusDefaulted
}

// WinningSide returns the side rewarded by a terminal status.
func (s LoanStatus) WinningSide() Side {
	switch s {
	case StatusSettled:
		return SideYes
	case StatusDefaulted:
		return SideNo
	default:
		return SideNone
	}
}

// ParseLoanStatus converts a label produced by String back into a status.
func ParseLoanStatus(raw string) (LoanStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for status, name := range statusNames {
		if name == normalized {
			return status, nil
		}
	}
	return StatusVoid, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Loan is the registry record for a loan contract under consideration.
type Loan struct {
	Address     [20]byte `json:"address"`
	Creator     [20]byte `json:"creator"`
	SubmittedAt int64    `json:"submittedAt"`
	TotalYes    *big.Int `json:"totalYes"`
	TotalNo     *big.Int `json:"totalNo"`
	// Escrowed is the sum of every open per-staker position on the loan.
	// Retraction leaves it untouched.
	Escrowed *big.Int `json:"escrowed"`
}

func newLoan(addr [20]byte) *Loan {
	return &Loan{
		Address:  addr,
		TotalYes: big.NewInt(0),
		TotalNo:  big.NewInt(0),
		Escrowed: big.NewInt(0),
	}
}

// HasCreator reports whether the loan is currently pending in the registry.
func (l *Loan) HasCreator() bool {
	return l != nil && !isZeroAddress(l.Creator)
}

// Submitted reports whether the loan was ever submitted.
func (l *Loan) Submitted() bool {
	return l != nil && l.SubmittedAt != 0
}

// Total returns the aggregate for the requested side.
func (l *Loan) Total(side Side) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	switch side {
	case SideYes:
		return newBigInt(l.TotalYes)
	case SideNo:
		return newBigInt(l.TotalNo)
	default:
		return big.NewInt(0)
	}
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.TotalYes = newBigInt(l.TotalYes)
	clone.TotalNo = newBigInt(l.TotalNo)
	clone.Escrowed = newBigInt(l.Escrowed)
	return &clone
}

// Vote records a staker's open position on a loan. At most one side is
// non-zero.
type Vote struct {
	Loan   [20]byte `json:"loan"`
	Staker [20]byte `json:"staker"`
	Yes    *big.Int `json:"yes"`
	No     *big.Int `json:"no"`
}

func newVote(loan, staker [20]byte) *Vote {
	return &Vote{Loan: loan, Staker: staker, Yes: big.NewInt(0), No: big.NewInt(0)}
}

// Side returns the side holding a non-zero stake.
func (v *Vote) Side() Side {
	if v == nil {
		return SideNone
	}
	if v.Yes != nil && v.Yes.Sign() > 0 {
		return SideYes
	}
	if v.No != nil && v.No.Sign() > 0 {
		return SideNo
	}
	return SideNone
}

// Amount returns the stake recorded on the supplied side.
func (v *Vote) Amount(side Side) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	switch side {
	case SideYes:
		return newBigInt(v.Yes)
	case SideNo:
		return newBigInt(v.No)
	default:
		return big.NewInt(0)
	}
}

// Clone returns a deep copy of the vote.
func (v *Vote) Clone() *Vote {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Yes = newBigInt(v.Yes)
	clone.No = newBigInt(v.No)
	return &clone
}

// Resolution is the immutable record captured when a withdrawal first
// observes a terminal status. Every terminal payout on the loan reads the
// aggregates from here.
type Resolution struct {
	Loan       [20]byte   `json:"loan"`
	Outcome    LoanStatus `json:"outcome"`
	TotalYes   *big.Int   `json:"totalYes"`
	TotalNo    *big.Int   `json:"totalNo"`
	CapturedAt int64      `json:"capturedAt"`
}

// Winning returns the frozen aggregate of the winning side.
func (r *Resolution) Winning() *big.Int {
	if r == nil {
		return big.NewInt(0)
	}
	if r.Outcome.WinningSide() == SideYes {
		return newBigInt(r.TotalYes)
	}
	return newBigInt(r.TotalNo)
}

// Losing returns the frozen aggregate of the losing side.
func (r *Resolution) Losing() *big.Int {
	if r == nil {
		return big.NewInt(0)
	}
	if r.Outcome.WinningSide() == SideYes {
		return newBigInt(r.TotalNo)
	}
	return newBigInt(r.TotalYes)
}

// Clone returns a deep copy of the resolution.
func (r *Resolution) Clone() *Resolution {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TotalYes = newBigInt(r.TotalYes)
	clone.TotalNo = newBigInt(r.TotalNo)
	return &clone
}

// LoanView aggregates everything the engine knows about a loan.
type LoanView struct {
	Loan       *Loan       `json:"loan"`
	Status     LoanStatus  `json:"status"`
	Resolution *Resolution `json:"resolution,omitempty"`
}
