package prediction

import "errors"

var (
	errNilState        = errors.New("prediction: state not configured")
	errNilParams       = errors.New("prediction: parameter store not configured")
	errNilOracle       = errors.New("prediction: oracle not configured")
	errNilToken        = errors.New("prediction: tokens not configured")
	errCustodyNotSet   = errors.New("prediction: custody account not configured")
	errAdminNotSet     = errors.New("prediction: administrator not configured")
	errCorruptLedger   = errors.New("prediction: ledger aggregate underflow")
	errInvalidResolved = errors.New("prediction: resolution outcome is not terminal")
)

// Authorization errors.
var (
	ErrNotAdmin   = errors.New("prediction: caller is not the administrator")
	ErrNotCreator = errors.New("prediction: caller is not the loan creator")
)

// State errors.
var (
	ErrLoanNotPending = errors.New("prediction: loan is not pending")
	ErrLoanRunning    = errors.New("prediction: loan is currently running")
	ErrLoanVoid       = errors.New("prediction: loan is void")
	ErrOpenPositions  = errors.New("prediction: loan still has open positions from a previous submission")
	ErrReentrantCall  = errors.New("prediction: reentrant call rejected")
	ErrLoanTerminal   = errors.New("prediction: loan already reached a terminal status")
)

// Conservation errors.
var (
	ErrBothSides     = errors.New("prediction: cannot vote both yes and no")
	ErrOverWithdrawn = errors.New("prediction: cannot withdraw more than was staked")
)

// Duplication errors.
var (
	ErrAlreadyCreated = errors.New("prediction: loan already created")
)

// Validation errors.
var (
	ErrInvalidAmount      = errors.New("prediction: amount must be positive")
	ErrInvalidSide        = errors.New("prediction: invalid side")
	ErrInvalidStatus      = errors.New("prediction: invalid loan status")
	ErrInvalidAddress     = errors.New("prediction: address must not be zero")
	ErrInvalidBasisPoints = errors.New("prediction: basis points must be between 0 and 10000")
)

// ErrOracleUnavailable wraps failures reported by the loan oracle.
var ErrOracleUnavailable = errors.New("prediction: loan oracle unavailable")

// ErrorKind classifies engine failures for callers that map them onto
// transport status codes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindState
	KindConservation
	KindDuplication
	KindValidation
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindConservation:
		return "conservation"
	case KindDuplication:
		return "duplication"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotAdmin, KindAuthorization},
	{ErrNotCreator, KindAuthorization},
	{ErrLoanNotPending, KindState},
	{ErrLoanRunning, KindState},
	{ErrLoanVoid, KindState},
	{ErrOpenPositions, KindState},
	{ErrReentrantCall, KindState},
	{ErrLoanTerminal, KindState},
	{ErrBothSides, KindConservation},
	{ErrOverWithdrawn, KindConservation},
	{ErrAlreadyCreated, KindDuplication},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidSide, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidAddress, KindValidation},
	{ErrInvalidBasisPoints, KindValidation},
	{ErrOracleUnavailable, KindUnavailable},
}

// KindOf returns the classification of err, or KindUnknown for errors that
// did not originate from the engine's taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range errorKinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}
