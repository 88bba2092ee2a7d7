package prediction

import (
	"strconv"

	"stakeoracle/core/events"
	"stakeoracle/core/types"
)

const (
	// EventTypeLoanSubmitted is emitted when a loan enters the registry.
	EventTypeLoanSubmitted = "prediction.loan.submitted"
	// EventTypeLoanRetracted is emitted when a creator retracts a pending loan.
	EventTypeLoanRetracted = "prediction.loan.retracted"
	// EventTypeVoteCast is emitted when stake moves into custody behind a side.
	EventTypeVoteCast = "prediction.vote.cast"
	// EventTypeWithdrawal is emitted after a withdrawal settles.
	EventTypeWithdrawal = "prediction.withdrawal"
	// EventTypeResolutionCaptured is emitted when terminal aggregates freeze.
	EventTypeResolutionCaptured = "prediction.resolution.captured"
	// EventTypeParamUpdated is emitted when an administrator changes a factor.
	EventTypeParamUpdated = "prediction.param.updated"
	// EventTypeOracleOverride is emitted when an administrator sets the status
	// reported by an operator controlled oracle.
	EventTypeOracleOverride = "prediction.oracle.override"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// LoanSubmittedEvent announces a submission. resubmitted is set when the
// loan had been retracted before.
func LoanSubmittedEvent(loan *Loan, resubmitted bool) *types.Event {
	return &types.Event{
		Type: EventTypeLoanSubmitted,
		Attributes: map[string]string{
			"loan":        hexAddr(loan.Address),
			"creator":     hexAddr(loan.Creator),
			"submittedAt": strconv.FormatInt(loan.SubmittedAt, 10),
			"resubmitted": strconv.FormatBool(resubmitted),
		},
	}
}

// LoanRetractedEvent announces a retraction with the aggregates it cleared.
func LoanRetractedEvent(loan [20]byte, creator [20]byte, clearedYes, clearedNo string) *types.Event {
	return &types.Event{
		Type: EventTypeLoanRetracted,
		Attributes: map[string]string{
			"loan":       hexAddr(loan),
			"creator":    hexAddr(creator),
			"clearedYes": clearedYes,
			"clearedNo":  clearedNo,
		},
	}
}

// VoteCastEvent captures a stake entering custody.
func VoteCastEvent(loan, staker [20]byte, side Side, amount, total string) *types.Event {
	return &types.Event{
		Type: EventTypeVoteCast,
		Attributes: map[string]string{
			"loan":   hexAddr(loan),
			"staker": hexAddr(staker),
			"side":   side.String(),
			"amount": amount,
			"total":  total,
		},
	}
}

// WithdrawalEvent captures the settlement executed for a withdrawal.
func WithdrawalEvent(s *Settlement) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawal,
		Attributes: map[string]string{
			"loan":   hexAddr(s.Loan),
			"staker": hexAddr(s.Staker),
			"side":   s.Side.String(),
			"status": s.Status.String(),
			"rule":   string(s.Rule),
			"amount": s.Amount.String(),
			"payout": s.Payout.String(),
			"burn":   s.Burn.String(),
		},
	}
}

// ResolutionCapturedEvent records the aggregates frozen for a terminal loan.
func ResolutionCapturedEvent(r *Resolution) *types.Event {
	return &types.Event{
		Type: EventTypeResolutionCaptured,
		Attributes: map[string]string{
			"loan":       hexAddr(r.Loan),
			"outcome":    r.Outcome.String(),
			"totalYes":   newBigInt(r.TotalYes).String(),
			"totalNo":    newBigInt(r.TotalNo).String(),
			"capturedAt": strconv.FormatInt(r.CapturedAt, 10),
		},
	}
}

// ParamUpdatedEvent records an administrator change to a redistribution factor.
func ParamUpdatedEvent(name string, previous, next uint32, caller [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeParamUpdated,
		Attributes: map[string]string{
			"param":    name,
			"previous": strconv.FormatUint(uint64(previous), 10),
			"value":    strconv.FormatUint(uint64(next), 10),
			"caller":   hexAddr(caller),
		},
	}
}

// OracleOverrideEvent records an administrator setting a loan's reported status.
func OracleOverrideEvent(loan [20]byte, status LoanStatus, caller [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeOracleOverride,
		Attributes: map[string]string{
			"loan":   hexAddr(loan),
			"status": status.String(),
			"caller": hexAddr(caller),
		},
	}
}
