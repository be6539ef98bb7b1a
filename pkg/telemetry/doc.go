// Package telemetry provides the observability stack of the configuration
// resolver.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry), and
// metrics (Prometheus in a private registry).
//
// # Usage
//
// Initialize telemetry at startup and hand component loggers to the
// packages that log:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("resolver").Zerolog()
//
// Phase loggers carry the package, profile, phase, and the trace and span
// IDs of the phase span.
//
// # Resolution Phases
//
// Each phase of a resolution runs inside StartPhase, which opens a span
// named after the phase and records its duration:
//
//	op := tel.StartPhase(ctx, telemetry.SpanRegion, "orders", "prod")
//	region, err := resolveRegion(op.Ctx)
//	op.End(err)
//
// The spans are config.parse, config.region, config.policy, and
// config.apply.
//
// # Metrics
//
//   - config_parses_total{status} and config_parse_duration_seconds
//   - cache_requests_total{cache,result}
//   - resolutions_total{status} and resolution_duration_seconds{phase}
//   - injected_types_total and unresolved_type_links_total
//   - errors_by_class_total{class} and errors_by_code_total{code}
//
// A disabled Metrics value and a nil *Metrics are both valid; every
// recording method is then a no-op.
//
// # Tracing Exporters
//
//   - otlp: OTLP over gRPC, for production collectors
//   - stdout: pretty-printed spans, for development
//   - none: spans are created but not exported
package telemetry
