package prediction

import (
	"stakeoracle/native/params"
)

const (
	paramLossFactor = "lossFactor"
	paramBurnFactor = "burnFactor"
)

// Params returns the redistribution factors applied to withdrawals computed
// now. They are global and are not pinned per loan.
func (e *Engine) Params() (params.Redistribution, error) {
	if e == nil || e.params == nil {
		return params.Redistribution{}, errNilParams
	}
	return e.params.Redistribution()
}

// SetLossFactor updates the share of the losing aggregate forfeited at
// settlement. Only the administrator may call it.
func (e *Engine) SetLossFactor(caller [20]byte, bps uint32) error {
	return e.updateParam(caller, paramLossFactor, bps, func(p *params.Redistribution) *uint32 {
		return &p.LossFactorBps
	})
}

// SetBurnFactor updates the share of the forfeited amount that is destroyed.
// Only the administrator may call it.
func (e *Engine) SetBurnFactor(caller [20]byte, bps uint32) error {
	return e.updateParam(caller, paramBurnFactor, bps, func(p *params.Redistribution) *uint32 {
		return &p.BurnFactorBps
	})
}

func (e *Engine) updateParam(caller [20]byte, name string, bps uint32, field func(*params.Redistribution) *uint32) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if e.params == nil {
		return errNilParams
	}
	if isZeroAddress(e.admin) {
		return errAdminNotSet
	}
	if caller != e.admin {
		return ErrNotAdmin
	}
	if bps > params.BasisPointsDenominator {
		return ErrInvalidBasisPoints
	}
	current, err := e.params.Redistribution()
	if err != nil {
		return err
	}
	slot := field(&current)
	previous := *slot
	*slot = bps
	if err := e.params.SetRedistribution(current); err != nil {
		return err
	}
	e.emit(ParamUpdatedEvent(name, previous, bps, caller))
	return nil
}
