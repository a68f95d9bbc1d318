// Package telemetry records the failures the service contains instead of
// returning.
package telemetry

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

const meterName = "github.com/0xcro3dile/docchat-go"

// MemoryFailures is a point-in-time copy of the failure counts.
type MemoryFailures struct {
	Writes int64 `json:"write_failures"`
	Reads  int64 `json:"read_failures"`
}

// OTelObserver implements ports.MemoryObserver with OpenTelemetry counters.
// It also keeps local totals so /api/health can report them without an
// exporter configured.
type OTelObserver struct {
	writeFailures metric.Int64Counter
	readFailures  metric.Int64Counter

	writes atomic.Int64
	reads  atomic.Int64
}

// NewOTelObserver registers the counters on the global meter provider.
func NewOTelObserver() (*OTelObserver, error) {
	meter := otel.Meter(meterName)

	writeFailures, err := meter.Int64Counter("docchat.memory.write_failures",
		metric.WithDescription("Conversation turns that could not be recorded"))
	if err != nil {
		return nil, err
	}
	readFailures, err := meter.Int64Counter("docchat.memory.read_failures",
		metric.WithDescription("Memory lookups that degraded to an empty context"))
	if err != nil {
		return nil, err
	}

	return &OTelObserver{writeFailures: writeFailures, readFailures: readFailures}, nil
}

func (o *OTelObserver) MemoryWriteFailed(ctx context.Context, sessionID string, err error) {
	o.writes.Add(1)
	o.writeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause(err))))
}

func (o *OTelObserver) MemoryReadFailed(ctx context.Context, sessionID string, err error) {
	o.reads.Add(1)
	o.readFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause(err))))
}

// cause names the kind of the failure underneath the memory error.
// Counter attributes must stay low-cardinality: no session IDs.
func cause(err error) string {
	var ce *errs.Error
	if errors.As(err, &ce) && (ce.Kind == errs.MemoryWrite || ce.Kind == errs.MemoryRead) {
		return errs.KindOf(ce.Err).String()
	}
	return errs.KindOf(err).String()
}

// Snapshot returns the failure totals since startup.
func (o *OTelObserver) Snapshot() MemoryFailures {
	return MemoryFailures{Writes: o.writes.Load(), Reads: o.reads.Load()}
}
