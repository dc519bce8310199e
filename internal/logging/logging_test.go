package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Output != "stderr" {
		t.Errorf("Output = %q, want stderr (stdout carries the result)", cfg.Output)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
}

func TestInitSideLogJSON(t *testing.T) {
	previous := Logger()
	defer func() {
		loggerMu.Lock()
		defaultLogger = previous
		loggerMu.Unlock()
		slog.SetDefault(previous)
	}()

	logFile := filepath.Join(t.TempDir(), "logs", "sidecar-monitor.log")
	closer, err := Init(&Config{
		Level:  "debug",
		Format: "json",
		Output: "none",
		File:   logFile,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	WithComponent("agent").Info("pass started")
	WithCorrelationID(nil, "run-123").Debug("scanning")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("side log not created: %v", err)
	}
	defer func() { _ = f.Close() }()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["component"] != "agent" {
		t.Errorf("component = %v", records[0]["component"])
	}
	if records[1]["run_id"] != "run-123" {
		t.Errorf("run_id = %v", records[1]["run_id"])
	}
}

func TestInitAppendsAcrossRuns(t *testing.T) {
	previous := Logger()
	defer func() {
		loggerMu.Lock()
		defaultLogger = previous
		loggerMu.Unlock()
		slog.SetDefault(previous)
	}()

	logFile := filepath.Join(t.TempDir(), "side.log")
	for i := 0; i < 2; i++ {
		closer, err := Init(&Config{Output: "none", File: logFile})
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		Info("pass", "n", i)
		_ = closer.Close()
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "msg=pass"); n != 2 {
		t.Errorf("found %d records, want 2 (append, not truncate)", n)
	}
}

func TestInitBadRotation(t *testing.T) {
	_, err := Init(&Config{
		Output:   "none",
		File:     filepath.Join(t.TempDir(), "x.log"),
		Rotation: &RotationConfig{MaxSize: "lots"},
	})
	if err == nil {
		t.Error("expected error for invalid max_size")
	}
}
