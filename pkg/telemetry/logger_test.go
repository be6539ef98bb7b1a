package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func readLogLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLogger_Fields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extconf.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	tracer, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, "extconf", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer() error: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartPhaseSpan(context.Background(), SpanApply, "svc", "prod")
	zl := logger.NewComponentLogger("journal").
		WithPackage("svc", "prod").
		WithPhase(SpanApply).
		WithResolutionID("r-1").
		WithSpan(ctx).
		Zerolog()
	zl.Info().Msg("recorded")
	EndSpan(span, nil)

	zl = logger.WithSpan(context.Background()).Zerolog()
	zl.Debug().Msg("no span")

	lines := readLogLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	want := map[string]string{
		"component":     "journal",
		"package":       "svc",
		"profile":       "prod",
		"phase":         SpanApply,
		"resolution_id": "r-1",
		"trace_id":      TraceID(ctx),
		"span_id":       SpanID(ctx),
	}
	for key, value := range want {
		if value == "" {
			t.Errorf("expected a %s for a recorded span", key)
		}
		if lines[0][key] != value {
			t.Errorf("%s = %v, want %s", key, lines[0][key], value)
		}
	}
	if _, ok := lines[1]["trace_id"]; ok {
		t.Errorf("expected no trace_id without a span, got %v", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zerolog.Level
		wantErr bool
	}{
		{name: "", want: zerolog.InfoLevel},
		{name: "debug", want: zerolog.DebugLevel},
		{name: "WARN", want: zerolog.WarnLevel},
		{name: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestLogger_NilDiscards(t *testing.T) {
	var l *Logger
	if l.NewComponentLogger("x").WithResolutionID("r").Zerolog().GetLevel() != zerolog.Disabled {
		t.Error("expected a nil logger to discard")
	}
}
