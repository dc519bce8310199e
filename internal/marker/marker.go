// Package marker writes the signal files consumed by an external watcher.
//
// Only the existence and modification time of a marker carry meaning. The
// content is a single human-readable line and is not parsed by tunnelsync.
package marker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// Event names the reason a marker was written
type Event string

const (
	EventChanged   Event = "config_changed"
	EventUnhealthy Event = "tunnel_unhealthy"
)

// Config holds marker file locations. An empty path disables that marker.
type Config struct {
	Changed   string `yaml:"changed"`
	Unhealthy string `yaml:"unhealthy"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Changed:   "/home/node/host_files/.webhook-url-changed",
		Unhealthy: "/home/node/host_files/.tunnel-unhealthy",
	}
}

// Signal replaces the marker at path with payload using a temp file and a
// rename, so a watcher never sees a truncated marker. The parent directory
// is created when missing.
func Signal(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

// Payload renders the advisory marker content.
func Payload(at time.Time, event Event, url, runID, reason string) []byte {
	var b strings.Builder
	b.WriteString(at.UTC().Format(time.RFC3339))
	b.WriteString(" ")
	b.WriteString(string(event))
	if url != "" {
		fmt.Fprintf(&b, " url=%s", url)
	}
	if reason != "" {
		fmt.Fprintf(&b, " reason=%q", reason)
	}
	if runID != "" {
		fmt.Fprintf(&b, " run=%s", runID)
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// Emitter signals the configured markers
type Emitter struct {
	config *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEmitter creates an emitter for cfg
func NewEmitter(cfg *Config, logger *slog.Logger) *Emitter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		config: cfg,
		logger: logger.With("component", "marker"),
		now:    time.Now,
	}
}

// Changed signals that the configuration file was rewritten.
func (e *Emitter) Changed(url, runID string) error {
	return e.emit(e.config.Changed, EventChanged, url, runID, "")
}

// Unhealthy signals that the discovered endpoint failed its probe.
func (e *Emitter) Unhealthy(url, runID, reason string) error {
	return e.emit(e.config.Unhealthy, EventUnhealthy, url, runID, reason)
}

func (e *Emitter) emit(path string, event Event, url, runID, reason string) error {
	if path == "" {
		e.logger.Debug("marker disabled", "event", event)
		return nil
	}

	if err := Signal(path, Payload(e.now(), event, url, runID, reason)); err != nil {
		return fmt.Errorf("%s marker: %w", event, err)
	}

	e.logger.Info("marker written", "event", event, "path", path)
	return nil
}
