// Package metrics exports the outcome of a single pass in the Prometheus
// text format for the node_exporter textfile collector. Every pass builds a
// fresh registry; nothing is carried between runs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tunnelsync"

// Actions lists every action label so stale series read as 0 rather than
// disappearing.
var Actions = []string{"update", "noChange", "error"}

// Config holds metrics export settings
type Config struct {
	Textfile string `yaml:"textfile"` // e.g. /var/lib/node_exporter/tunnelsync.prom
}

// Report is the observable summary of one pass.
type Report struct {
	Timestamp       time.Time
	Action          string
	Reason          string
	EndpointFound   bool
	Healthy         bool
	ProbeStatusCode int
	ProbeLatency    time.Duration
	Changed         bool
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Registry builds a registry populated from r.
func Registry(r *Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		g.Set(value)
		reg.MustRegister(g)
	}

	gauge("last_run_timestamp_seconds", "Unix time of the last reconciliation pass.",
		float64(r.Timestamp.UnixNano())/1e9)
	gauge("endpoint_found", "Whether the tunnel log yielded an endpoint address.",
		boolValue(r.EndpointFound))
	gauge("endpoint_healthy", "Whether the discovered endpoint passed the probe.",
		boolValue(r.Healthy))
	gauge("probe_status_code", "HTTP status returned by the endpoint probe, 0 if none.",
		float64(r.ProbeStatusCode))
	gauge("probe_duration_seconds", "Latency of the endpoint probe.",
		r.ProbeLatency.Seconds())
	gauge("config_changed", "Whether the last pass rewrote the configuration file.",
		boolValue(r.Changed))

	actions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_action",
		Help:      "Action reported by the last pass (1 for the current action).",
	}, []string{"action"})
	for _, a := range Actions {
		actions.WithLabelValues(a).Set(boolValue(a == r.Action))
	}
	reg.MustRegister(actions)

	if r.Reason != "" {
		reason := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_error",
			Help:      "Reason reported by the last failed pass.",
		}, []string{"reason"})
		reason.WithLabelValues(r.Reason).Set(1)
		reg.MustRegister(reason)
	}

	return reg
}

// WriteTextfile renders r to path. The exporter itself writes a temp file
// and renames it, so the collector never reads a partial file.
func WriteTextfile(path string, r *Report) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry(r)); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
