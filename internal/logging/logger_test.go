package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONLinesAndMirrorsConsole(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	logger, err := New(filepath.Join(dir, "logs"), Options{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	agents := For(logger.Logger, "AgentManager")
	agents.Info("Started agent: producer")
	agents.Warn("Recovery attempt 1 failed for director", "error", errors.New("boom"), "attempt", 1)
	agents.Debug("below threshold")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "logs", SystemLogFile))
	if err != nil {
		t.Fatalf("open system log: %v", err)
	}
	defer f.Close()
	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Level != "info" || entries[0].Source != "AgentManager" || entries[0].Message != "Started agent: producer" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].Details != nil {
		t.Fatalf("expected no details, got %v", entries[0].Details)
	}
	if entries[1].Level != "warn" || entries[1].Details["error"] != "boom" || entries[1].Details["attempt"] != float64(1) {
		t.Fatalf("unexpected warn entry: %+v", entries[1])
	}

	if !strings.Contains(stdout.String(), "[INFO]") || !strings.Contains(stdout.String(), "[AgentManager]") {
		t.Fatalf("stdout mirror missing prefix: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "[WARN]") || !strings.Contains(stderr.String(), "Recovery attempt 1 failed") {
		t.Fatalf("stderr mirror missing warning: %q", stderr.String())
	}
	if strings.Contains(stdout.String()+stderr.String(), "below threshold") {
		t.Fatalf("debug entry should be filtered at info level")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestHandlerSwallowsWriteFailures(t *testing.T) {
	h := NewHandler(failingWriter{}, failingWriter{}, failingWriter{}, slog.LevelDebug)
	logger := slog.New(h)
	logger.Error("still fine")
}

func TestGroupedAttributesAreFlattened(t *testing.T) {
	var file bytes.Buffer
	logger := slog.New(NewHandler(&file, io.Discard, io.Discard, slog.LevelInfo))
	For(logger, "Monitor").WithGroup("health").Info("tick", "unhealthy", 2)

	var e Entry
	if err := json.Unmarshal(bytes.TrimSpace(file.Bytes()), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Source != "Monitor" {
		t.Fatalf("source = %q, want Monitor", e.Source)
	}
	if e.Details["health.unhealthy"] != float64(2) {
		t.Fatalf("expected flattened group key, got %v", e.Details)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
