package core

import "errors"

var (
	// ErrOracleReadOnly is returned when an oracle status change is requested
	// but the configured oracle reads from an external source.
	ErrOracleReadOnly = errors.New("core: oracle does not accept status updates")
	// ErrInvalidGenesis is returned for malformed genesis documents.
	ErrInvalidGenesis = errors.New("core: invalid genesis")
	// ErrUnknownToken is returned when a symbol is not registered.
	ErrUnknownToken = errors.New("core: unknown token")

	errNilDatabase = errors.New("core: database not configured")
	errNilOracle   = errors.New("core: oracle not configured")
)
