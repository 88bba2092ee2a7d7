package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"stakeoracle/native/prediction"
)

// LoanABI is the read-only surface of the loan contract consulted by the
// oracle. status() returns 0 Void, 1 Pending, 2 Running, 3 Settled,
// 4 Defaulted.
const LoanABI = `[{"inputs":[],"name":"status","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// ContractCaller defines the subset of the Ethereum RPC used by the oracle.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// RetryConfig bounds how often a failed status read is retried. Only the RPC
// read is retried; engine operations are never replayed.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
}

// EVM reads loan status from the loan contract deployed at the loan address.
type EVM struct {
	caller ContractCaller
	abi    abi.ABI
	retry  RetryConfig
	logger *slog.Logger
}

// NewEVM constructs an oracle backed by caller.
func NewEVM(caller ContractCaller, cfg RetryConfig, logger *slog.Logger) (*EVM, error) {
	if caller == nil {
		return nil, fmt.Errorf("oracle: contract caller required")
	}
	parsed, err := abi.JSON(strings.NewReader(LoanABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse loan abi: %w", err)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EVM{caller: caller, abi: parsed, retry: cfg, logger: logger}, nil
}

// errMalformed marks responses that retrying cannot fix.
var errMalformed = errors.New("oracle: malformed status response")

// LoanStatus implements prediction.Oracle.
func (o *EVM) LoanStatus(ctx context.Context, loan [20]byte) (prediction.LoanStatus, error) {
	input, err := o.abi.Pack("status")
	if err != nil {
		return prediction.StatusVoid, fmt.Errorf("oracle: pack status call: %w", err)
	}
	contract := common.Address(loan)
	call := func() (prediction.LoanStatus, error) {
		output, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
		if err != nil {
			return prediction.StatusVoid, err
		}
		return o.decode(output)
	}
	status, err := retry.DoWithData(call,
		retry.Context(ctx),
		retry.Attempts(o.retry.Attempts),
		retry.Delay(o.retry.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errMalformed)
		}),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Warn("loan status call failed, retrying",
				slog.String("loan", contract.Hex()),
				slog.Uint64("attempt", uint64(n+1)),
				slog.Uint64("max_attempts", uint64(o.retry.Attempts)),
				slog.Any("error", err))
		}))
	if err != nil {
		return prediction.StatusVoid, fmt.Errorf("oracle: loan %s status: %w", contract.Hex(), err)
	}
	return status, nil
}

func (o *EVM) decode(output []byte) (prediction.LoanStatus, error) {
	if len(output) == 0 {
		// No code at the address: the loan contract does not exist yet.
		return prediction.StatusVoid, nil
	}
	values, err := o.abi.Unpack("status", output)
	if err != nil {
		return prediction.StatusVoid, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(values) != 1 {
		return prediction.StatusVoid, fmt.Errorf("%w: %d values", errMalformed, len(values))
	}
	raw, ok := values[0].(uint8)
	if !ok {
		return prediction.StatusVoid, fmt.Errorf("%w: unexpected type %T", errMalformed, values[0])
	}
	status := prediction.LoanStatus(raw)
	if !status.External() {
		return prediction.StatusVoid, fmt.Errorf("%w: unknown status %d", errMalformed, raw)
	}
	return status, nil
}
