package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info")
	log.Debug("hidden")
	log.With("chart", "galaxy").WithGroup("helm").Info("upgraded", "revision", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	for _, want := range []string{"INFO", "upgraded", "helm.revision=3", "chart=galaxy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("NO_COLOR output contains escape codes: %q", out)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	NewWithWriter(&buf, "debug").Debug("rendered", "charts", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if rec["msg"] != "rendered" || rec["charts"] != float64(2) {
		t.Errorf("record = %v", rec)
	}
}

func TestNewWithWriter_TextFormatting(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")
	log.WithGroup("apply").With("release", "galaxy").Warn("chart failed",
		"error", `helm upgrade: exit status 1: Error: "galaxy" has no deployed releases`,
		slog.Group("chart", "version", "3.1.0", "namespace", ""),
	)

	out := buf.String()
	for _, want := range []string{
		"WARN ",
		"apply.release=galaxy",
		`apply.error="helm upgrade: exit status 1: Error: \"galaxy\" has no deployed releases"`,
		"apply.chart.version=3.1.0",
		`apply.chart.namespace=""`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("want a single line, got %q", out)
	}
}

func TestNewWithWriter_Color(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("NO_COLOR", "")
	t.Setenv("LOG_COLOR", "")

	var buf bytes.Buffer
	NewWithWriter(&buf, "info").Error("apply failed")

	if !strings.Contains(buf.String(), "\033[") {
		t.Errorf("colored output has no escape codes: %q", buf.String())
	}
}
