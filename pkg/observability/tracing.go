// Package observability provides OpenTelemetry tracing for framefeed.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global tracer instance, set by InitTracing
	tracer trace.Tracer

	// Initialization lock
	initOnce sync.Once
)

// GetTracer returns the global tracer. Before InitTracing it returns the
// tracer of whatever provider is installed globally (a no-op by default).
func GetTracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("framefeed")
	}
	return tracer
}

// StageTracer provides stage-specific tracing utilities
type StageTracer struct {
	stage string
	name  string
}

// NewStageTracer creates a tracer for one pipeline stage instance
func NewStageTracer(stage, name string) *StageTracer {
	return &StageTracer{stage: stage, name: name}
}

// StartSpan starts a stage-specific span
func (st *StageTracer) StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	operationName := fmt.Sprintf("%s.%s", st.stage, operation)
	return GetTracer().Start(ctx, operationName, trace.WithAttributes(
		attribute.String("stage.type", st.stage),
		attribute.String("stage.name", st.name),
	))
}

// TraceChunk traces the production of one batch of rows
func (st *StageTracer) TraceChunk(ctx context.Context, rows int, fn func(ctx context.Context) error) error {
	ctx, span := st.StartSpan(ctx, "chunk")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk.rows", rows))

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("chunk.duration_us", time.Since(start).Microseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// RecordInterval emits an already-completed interval as a span
func RecordInterval(ctx context.Context, name string, start, end time.Time, attrs ...attribute.KeyValue) {
	_, span := GetTracer().Start(ctx, name,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(end))
}
