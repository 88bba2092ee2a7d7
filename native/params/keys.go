package params

const (
	// ParamsKeyRedistribution stores the loss and burn factors applied at
	// withdrawal time.
	ParamsKeyRedistribution = "prediction/redistribution"
)
