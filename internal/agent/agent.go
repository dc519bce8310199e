// Package agent runs one discovery, verify and reconcile pass.
//
// A pass ends in exactly one of these states:
//
//   - no endpoint in the tunnel log: error "No URL found", nothing written
//   - endpoint unreachable: unhealthy marker written, configuration untouched
//   - configuration already correct: noChange
//   - configuration rewritten: change marker written, update
//
// Nothing is remembered between passes apart from the configuration file and
// the marker files themselves.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alekspetrov/tunnelsync/internal/config"
	"github.com/alekspetrov/tunnelsync/internal/health"
	"github.com/alekspetrov/tunnelsync/internal/logging"
	"github.com/alekspetrov/tunnelsync/internal/marker"
	"github.com/alekspetrov/tunnelsync/internal/metrics"
	"github.com/alekspetrov/tunnelsync/internal/reconcile"
	"github.com/alekspetrov/tunnelsync/internal/tunnel"
)

// Actions reported in Result.Action
const (
	ActionUpdate   = "update"
	ActionNoChange = "noChange"
	ActionError    = "error"
)

// Reasons reported in Result.Error
const (
	ReasonNoURL         = "No URL found"
	ReasonUnreachable   = "URL Unreachable"
	ReasonKeyNotFound   = "Config key not found"
	ReasonWriteFailed   = "Config write failed"
	ReasonInvalidConfig = "Invalid configuration"
)

// Result is the structured outcome printed after every pass.
type Result struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResult builds a failed result with a machine-checkable reason. URL
// is left empty: only a reconciled address is reported.
func ErrorResult(reason string) *Result {
	return &Result{Action: ActionError, Error: reason}
}

// Scanner finds the latest endpoint in the tunnel log
type Scanner interface {
	WaitForEndpoint(ctx context.Context) tunnel.Scan
}

// Prober checks endpoint reachability
type Prober interface {
	Probe(ctx context.Context, url string) *health.Check
}

// Reconciler applies a candidate endpoint to the configuration file
type Reconciler interface {
	Apply(candidate string) *reconcile.Result
}

// Signaler writes marker files
type Signaler interface {
	Changed(url, runID string) error
	Unhealthy(url, runID, reason string) error
}

// Agent wires the pass components together
type Agent struct {
	scanner     Scanner
	prober      Prober
	reconciler  Reconciler
	markers     Signaler
	metricsPath string
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// New builds an agent from a validated configuration
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scanner, err := tunnel.NewScanner(cfg.Tunnel, logger.With("component", "tunnel"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log scanner: %w", err)
	}

	reconciler, err := reconcile.New(cfg.Target, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	metricsPath := ""
	if cfg.Metrics != nil {
		metricsPath = cfg.Metrics.Textfile
	}

	return &Agent{
		scanner:     scanner,
		prober:      health.NewProber(cfg.Probe, logger),
		reconciler:  reconciler,
		markers:     marker.NewEmitter(cfg.Markers, logger),
		metricsPath: metricsPath,
		logger:      logger.With("component", "agent"),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Run performs one pass. It never returns an error: every failure is
// classified into the Result.
func (a *Agent) Run(ctx context.Context) *Result {
	runID := a.newID()
	log := logging.WithCorrelationID(a.logger, runID)
	report := &metrics.Report{Timestamp: a.now()}

	log.Info("pass started")
	result := a.run(ctx, log, runID, report)

	report.Action = result.Action
	report.Reason = result.Error
	if err := metrics.WriteTextfile(a.metricsPath, report); err != nil {
		log.Warn("failed to export metrics", "error", err)
	}

	log.Info("pass finished",
		"action", result.Action,
		"url", result.URL,
		"error", result.Error,
		"duration", a.now().Sub(report.Timestamp),
	)
	return result
}

func (a *Agent) run(ctx context.Context, log *slog.Logger, runID string, report *metrics.Report) *Result {
	scan := a.scanner.WaitForEndpoint(ctx)
	if scan.Status == tunnel.ScanIOError {
		log.Warn("tunnel log unreadable, will retry next pass", "error", scan.Err)
	}
	if !scan.Found() {
		log.Info("no tunnel URL found yet")
		return ErrorResult(ReasonNoURL)
	}
	report.EndpointFound = true
	log.Info("tunnel URL discovered", "url", scan.URL)

	check := a.prober.Probe(ctx, scan.URL)
	report.Healthy = check.Healthy()
	report.ProbeStatusCode = check.StatusCode
	report.ProbeLatency = check.Latency

	if !check.Healthy() {
		log.Warn("URL found but it is not reachable",
			"url", scan.URL,
			"status_code", check.StatusCode,
			"reason", check.Message,
		)
		if err := a.markers.Unhealthy(scan.URL, runID, check.Message); err != nil {
			log.Error("failed to signal unhealthy tunnel", "error", err)
		}
		return ErrorResult(ReasonUnreachable)
	}

	rec := a.reconciler.Apply(scan.URL)
	switch rec.Outcome {
	case reconcile.Changed:
		report.Changed = true
		log.Info("config updated, watcher should restart dependants",
			"path", rec.Path,
			"from", rec.Previous,
			"to", rec.Current,
		)
		if err := a.markers.Changed(rec.Current, runID); err != nil {
			log.Error("failed to signal config change", "error", err)
		}
		return &Result{Success: true, Action: ActionUpdate, URL: rec.Current}

	case reconcile.NoChange:
		log.Debug("config already up to date", "url", rec.Current)
		return &Result{Success: true, Action: ActionNoChange, URL: rec.Current}

	case reconcile.NotFound:
		log.Warn("config target missing, nothing updated", "path", rec.Path, "error", rec.Err)
		return ErrorResult(ReasonKeyNotFound)

	default:
		log.Error("config update failed", "path", rec.Path, "error", rec.Err)
		return ErrorResult(ReasonWriteFailed)
	}
}
