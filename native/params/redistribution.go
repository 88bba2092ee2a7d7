package params

import "fmt"

// BasisPointsDenominator is the scale on which 10_000 represents 100%.
const BasisPointsDenominator = 10_000

const (
	// DefaultLossFactorBps applies when no loss factor has been stored.
	DefaultLossFactorBps uint32 = 2_500
	// DefaultBurnFactorBps applies when no burn factor has been stored.
	DefaultBurnFactorBps uint32 = 2_500
)

// Redistribution captures the global settlement parameters. The values are
// read when a withdrawal is computed, so updates apply to loans that are
// already in flight.
type Redistribution struct {
	LossFactorBps uint32 `json:"lossFactorBps"`
	BurnFactorBps uint32 `json:"burnFactorBps"`
}

// DefaultRedistribution returns the parameters used before an administrator
// stores explicit values.
func DefaultRedistribution() Redistribution {
	return Redistribution{
		LossFactorBps: DefaultLossFactorBps,
		BurnFactorBps: DefaultBurnFactorBps,
	}
}

// Validate ensures both factors fall within the basis point range.
func (r Redistribution) Validate() error {
	if r.LossFactorBps > BasisPointsDenominator {
		return fmt.Errorf("params: loss factor %d exceeds %d bps", r.LossFactorBps, BasisPointsDenominator)
	}
	if r.BurnFactorBps > BasisPointsDenominator {
		return fmt.Errorf("params: burn factor %d exceeds %d bps", r.BurnFactorBps, BasisPointsDenominator)
	}
	return nil
}
