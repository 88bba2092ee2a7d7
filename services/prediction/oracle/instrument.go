package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakeoracle/native/prediction"
	"stakeoracle/observability"
)

const tracerName = "predictd/oracle"

type instrumented struct {
	inner   prediction.Oracle
	metrics *observability.OracleMetrics
	tracer  trace.Tracer
}

// Instrument traces every status read made through inner and records its
// latency and result.
func Instrument(inner prediction.Oracle) prediction.Oracle {
	if inner == nil {
		return nil
	}
	return &instrumented{
		inner:   inner,
		metrics: observability.Oracle(),
		tracer:  otel.Tracer(tracerName),
	}
}

func (o *instrumented) LoanStatus(ctx context.Context, loan [20]byte) (prediction.LoanStatus, error) {
	ctx, span := o.tracer.Start(ctx, "oracle.LoanStatus", trace.WithAttributes(
		attribute.String("loan", strings.ToLower(common.Address(loan).Hex())),
	))
	defer span.End()
	start := time.Now()
	status, err := o.inner.LoanStatus(ctx, loan)
	result := status.String()
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("loan.status", result))
	o.metrics.ObserveRead(result, time.Since(start))
	return status, err
}
