// Package telemetry bootstraps OpenTelemetry tracing for the simulator
// process and provides the station/session-scoped span helpers the rest of
// the codebase uses to annotate boot cycles and reconnect attempts.
package telemetry

import (
	"context"
	"fmt"

	"github.com/ocppsim/simulator/internal/config"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies every span this package emits in the resulting
// trace backend.
const tracerName = "ocppsim/simulator"

// Init sets up OpenTelemetry tracing with an OTLP gRPC exporter and
// registers it as the global tracer provider; every StartStationSpan/
// StartSessionSpan call elsewhere in the process draws from it. Returns a
// shutdown function to call on graceful process exit.
func Init(cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		log.Info().Msg("🔕 OpenTelemetry disabled")
		return func(ctx context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // Phase 1: insecure for local dev; production should use TLS via OTEL_EXPORTER_OTLP_CERTIFICATE
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", "0.1.0"),
			attribute.String("service.component", "ocpp-simulator"),
		),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("endpoint", cfg.OTLPEndpoint).
		Str("service", cfg.ServiceName).
		Msg("📡 OpenTelemetry tracing initialized")

	return tp.Shutdown, nil
}

// StartStationSpan opens a span for a boot-cycle operation (BootNotification
// send/response, state transition) scoped to one simulated charge point. A
// disabled tracer provider (Init never called, or OTLP disabled) returns a
// harmless no-op span — callers never need to branch on whether tracing is
// on.
func StartStationSpan(ctx context.Context, op, hashID string, version string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "station."+op,
		trace.WithAttributes(
			attribute.String("ocpp.station.hash_id", hashID),
			attribute.String("ocpp.version", version),
		),
	)
}

// StartSessionSpan opens a span for a session-engine operation (connect
// attempt, reconnect backoff) scoped to the CSMS URL a station talks to.
func StartSessionSpan(ctx context.Context, op, url string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session."+op,
		trace.WithAttributes(attribute.String("ocpp.session.url", url)),
	)
}

// RecordOutcome sets the span's status from err (nil records success) and
// ends it. Callers defer this immediately after starting a span.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
