package oracle

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"stakeoracle/native/prediction"
)

type fakeCaller struct {
	responses [][]byte
	errs      []error
	calls     int
	lastTo    [20]byte
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	idx := f.calls
	f.calls++
	if call.To != nil {
		f.lastTo = *call.To
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func packStatus(t *testing.T, status uint8) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(LoanABI))
	require.NoError(t, err)
	out, err := parsed.Methods["status"].Outputs.Pack(status)
	require.NoError(t, err)
	return out
}

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 3, Delay: time.Millisecond}
}

func TestEVMStatusDecoding(t *testing.T) {
	loan := [20]byte{0xAB}
	for raw, want := range map[uint8]prediction.LoanStatus{
		0: prediction.StatusVoid,
		1: prediction.StatusPending,
		2: prediction.StatusRunning,
		3: prediction.StatusSettled,
		4: prediction.StatusDefaulted,
	} {
		caller := &fakeCaller{responses: [][]byte{packStatus(t, raw)}}
		o, err := NewEVM(caller, fastRetry(), nil)
		require.NoError(t, err)
		got, err := o.LoanStatus(context.Background(), loan)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, loan, caller.lastTo)
	}
}

func TestEVMEmptyCodeIsVoid(t *testing.T) {
	o, err := NewEVM(&fakeCaller{responses: [][]byte{nil}}, fastRetry(), nil)
	require.NoError(t, err)
	status, err := o.LoanStatus(context.Background(), [20]byte{1})
	require.NoError(t, err)
	require.Equal(t, prediction.StatusVoid, status)
}

func TestEVMRetriesTransportErrors(t *testing.T) {
	caller := &fakeCaller{
		errs:      []error{errors.New("connection reset"), errors.New("timeout")},
		responses: [][]byte{nil, nil, packStatus(t, 2)},
	}
	o, err := NewEVM(caller, fastRetry(), nil)
	require.NoError(t, err)
	status, err := o.LoanStatus(context.Background(), [20]byte{1})
	require.NoError(t, err)
	require.Equal(t, prediction.StatusRunning, status)
	require.Equal(t, 3, caller.calls)
}

func TestEVMGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("rpc unavailable")
	caller := &fakeCaller{errs: []error{boom, boom, boom, boom}, responses: [][]byte{nil}}
	o, err := NewEVM(caller, fastRetry(), nil)
	require.NoError(t, err)
	_, err = o.LoanStatus(context.Background(), [20]byte{1})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, caller.calls)
}

func TestEVMDoesNotRetryUnknownStatus(t *testing.T) {
	caller := &fakeCaller{responses: [][]byte{packStatus(t, 9)}}
	o, err := NewEVM(caller, fastRetry(), nil)
	require.NoError(t, err)
	_, err = o.LoanStatus(context.Background(), [20]byte{1})
	require.ErrorIs(t, err, errMalformed)
	require.Equal(t, 1, caller.calls)
}

func TestStaticOracle(t *testing.T) {
	o := NewStatic()
	loan := [20]byte{7}
	status, err := o.LoanStatus(context.Background(), loan)
	require.NoError(t, err)
	require.Equal(t, prediction.StatusVoid, status)

	require.NoError(t, o.Set(loan, prediction.StatusSettled))
	status, _ = o.LoanStatus(context.Background(), loan)
	require.Equal(t, prediction.StatusSettled, status)

	require.ErrorIs(t, o.Set(loan, prediction.StatusRetracted), prediction.ErrInvalidStatus)
}

func TestStaticOracleKeepsTerminalStatus(t *testing.T) {
	o := NewStatic()
	loan := [20]byte{8}
	require.NoError(t, o.Set(loan, prediction.StatusPending))
	require.NoError(t, o.Set(loan, prediction.StatusRunning))
	require.NoError(t, o.Set(loan, prediction.StatusDefaulted))
	require.NoError(t, o.Set(loan, prediction.StatusDefaulted))

	for _, next := range []prediction.LoanStatus{prediction.StatusPending, prediction.StatusRunning, prediction.StatusSettled, prediction.StatusVoid} {
		err := o.Set(loan, next)
		require.ErrorIs(t, err, prediction.ErrLoanTerminal, next.String())
		require.Equal(t, prediction.KindState, prediction.KindOf(err))
	}
	status, err := o.LoanStatus(context.Background(), loan)
	require.NoError(t, err)
	require.Equal(t, prediction.StatusDefaulted, status)
}

func TestInstrumentPassesThrough(t *testing.T) {
	require.Nil(t, Instrument(nil))

	static := NewStatic()
	loan := [20]byte{9}
	require.NoError(t, static.Set(loan, prediction.StatusRunning))
	wrapped := Instrument(static)
	status, err := wrapped.LoanStatus(context.Background(), loan)
	require.NoError(t, err)
	require.Equal(t, prediction.StatusRunning, status)

	failing := Instrument(prediction.OracleFunc(func(context.Context, [20]byte) (prediction.LoanStatus, error) {
		return prediction.StatusVoid, errors.New("rpc down")
	}))
	_, err = failing.LoanStatus(context.Background(), loan)
	require.EqualError(t, err, "rpc down")
}

func TestInstrumentRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	static := NewStatic()
	loan := [20]byte{0xab}
	require.NoError(t, static.Set(loan, prediction.StatusPending))
	_, err := Instrument(static).LoanStatus(context.Background(), loan)
	require.NoError(t, err)
	failing := Instrument(prediction.OracleFunc(func(context.Context, [20]byte) (prediction.LoanStatus, error) {
		return prediction.StatusVoid, errors.New("rpc down")
	}))
	_, err = failing.LoanStatus(context.Background(), loan)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	require.Equal(t, "oracle.LoanStatus", spans[0].Name())
	require.Equal(t, "0xab00000000000000000000000000000000000000", attrs["loan"])
	require.Equal(t, "pending", attrs["loan.status"])
	require.Equal(t, codes.Error, spans[1].Status().Code)
}
