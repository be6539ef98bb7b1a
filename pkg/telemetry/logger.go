package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the resolver's structured logger. Each With method returns a
// child carrying one more resolution field; packages that take a plain
// zerolog.Logger get it from Zerolog.
type Logger struct {
	zlog zerolog.Logger
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	out, err := logOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat(cfg.TimeFormat)}
	}
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	zlog := zctx.Logger()

	if cfg.EnableSampling {
		zlog = zlog.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}
	return &Logger{zlog: zlog}, nil
}

// ParseLevel maps a configured level name to a zerolog level. The empty
// name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func logOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

func consoleTimeFormat(format string) string {
	if format == "unix" {
		return zerolog.TimeFormatUnix
	}
	return time.RFC3339
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zlog: fn(l.zlog.With()).Logger()}
}

// NewComponentLogger returns a child logger for one component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("component", component)
	})
}

// WithPackage adds the configured package and profile.
func (l *Logger) WithPackage(pkg, profile string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("package", pkg).Str("profile", profile)
	})
}

// WithPhase adds the resolution phase.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("phase", phase)
	})
}

// WithFile adds a configuration file path.
func (l *Logger) WithFile(path string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("file", path)
	})
}

// WithResolutionID adds the journal ID of a resolution.
func (l *Logger) WithResolutionID(id string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("resolution_id", id)
	})
}

// WithSpan adds the trace and span IDs of the span in ctx. Without a
// recording span the logger is returned unchanged.
func (l *Logger) WithSpan(ctx context.Context) *Logger {
	traceID := TraceID(ctx)
	if traceID == "" {
		return l
	}
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("trace_id", traceID).Str("span_id", SpanID(ctx))
	})
}

// Zerolog returns the underlying logger. A nil Logger yields a logger
// that discards everything.
func (l *Logger) Zerolog() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.zlog
}
