package telemetry

import (
	"context"

	"github.com/openfroyo/extconf/pkg/engine"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Shutdown flushes and stops the tracer. The metrics server keeps
// serving until the process exits.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	if t == nil {
		return nil
	}
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext carries the span, logger, and timer of one phase.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	phase   string
	metrics *Metrics
}

// StartPhase begins one resolution phase for pkg/profile. The phase name
// is also the span name.
func (t *Telemetry) StartPhase(ctx context.Context, phase, pkg, profile string) *InstrumentedContext {
	if t == nil {
		return &InstrumentedContext{Ctx: ctx, Timer: NewTimer()}
	}
	spanCtx, span := t.Tracer.StartPhaseSpan(ctx, phase, pkg, profile)
	return &InstrumentedContext{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  t.Logger.WithPackage(pkg, profile).WithPhase(phase).WithSpan(spanCtx),
		Timer:   NewTimer(),
		phase:   phase,
		metrics: t.Metrics,
	}
}

// StartParse begins parsing the configuration file at path.
func (t *Telemetry) StartParse(ctx context.Context, path string) *InstrumentedContext {
	if t == nil {
		return &InstrumentedContext{Ctx: ctx, Timer: NewTimer()}
	}
	spanCtx, span := t.Tracer.StartParseSpan(ctx, path)
	return &InstrumentedContext{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  t.Logger.WithFile(path).WithSpan(spanCtx),
		Timer:   NewTimer(),
		phase:   SpanParse,
		metrics: t.Metrics,
	}
}

// End finishes the operation. Parses are counted by outcome; other phases
// record their duration under the phase name. A classified error is also
// counted by class and code.
func (ic *InstrumentedContext) End(err error) {
	switch {
	case ic.metrics == nil || ic.phase == "":
	case ic.phase == SpanParse:
		status := "success"
		if err != nil {
			status = "failure"
		}
		ic.metrics.RecordParse(status, ic.Timer.Duration())
	default:
		ic.metrics.RecordPhase(ic.phase, ic.Timer.Duration())
	}

	class := engine.ClassOf(err)
	if class != "" {
		ic.metrics.RecordError(string(class), engine.CodeOf(err))
	}
	if ic.Span == nil {
		return
	}
	if class != "" {
		ic.Span.SetAttributes(
			AttrErrorClass.String(string(class)),
			AttrErrorCode.String(engine.CodeOf(err)),
		)
	}
	EndSpan(ic.Span, err)
}
