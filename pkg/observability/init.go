package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	// Writer receives exported spans; defaults to stdout
	Writer         io.Writer
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "framefeed",
		ServiceVersion: "0.1.0",
		Environment:    getEnv("ENVIRONMENT", "development"),
		SamplingRate:   0.1,
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// InitTracing installs a global tracer provider exporting to the configured writer
func InitTracing(config TracingConfig) error {
	var err error
	initOnce.Do(func() {
		err = initTracing(config)
		if err != nil {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
	return err
}

// initTracing initializes the tracing provider
func initTracing(config TracingConfig) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	w := config.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	if config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	opts := []sdktrace.BatchSpanProcessorOption{}
	if config.BatchTimeout > 0 {
		opts = append(opts, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}
	if config.MaxExportBatch > 0 {
		opts = append(opts, sdktrace.WithMaxExportBatchSize(config.MaxExportBatch))
	}
	if config.MaxQueueSize > 0 {
		opts = append(opts, sdktrace.WithMaxQueueSize(config.MaxQueueSize))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, opts...),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(config.ServiceName)

	return nil
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Shutdown flushes and stops the tracer provider, if one was installed
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer: %w", err)
		}
	}
	return nil
}
