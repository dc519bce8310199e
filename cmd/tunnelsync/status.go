package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/tunnelsync/internal/config"
	"github.com/alekspetrov/tunnelsync/internal/health"
	"github.com/alekspetrov/tunnelsync/internal/logging"
	"github.com/alekspetrov/tunnelsync/internal/reconcile"
	"github.com/alekspetrov/tunnelsync/internal/tunnel"
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#7eb8da")) // steel blue

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#c9d1d9")). // light gray
				Width(12)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7eb8da"))

	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ec699")) // sage green

	statusFailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d48a8a")) // dusty rose

	statusDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")) // mid gray
)

// statusReport is the read-only view printed by 'tunnelsync status'
type statusReport struct {
	LogPath     string         `json:"log_path"`
	Pattern     string         `json:"pattern"`
	ScanStatus  string         `json:"scan_status"`
	ScanError   string         `json:"scan_error,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Probe       *probeReport   `json:"probe,omitempty"`
	Target      string         `json:"target"`
	Key         string         `json:"key"`
	Values      []string       `json:"values,omitempty"`
	TargetError string         `json:"target_error,omitempty"`
	InSync      bool           `json:"in_sync"`
	Markers     []markerReport `json:"markers"`
}

type probeReport struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Message    string `json:"message,omitempty"`
}

type markerReport struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Modified *time.Time `json:"modified,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		noProbe    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tunnel URL, configured value and markers",
		Long: `Show what a pass would see, without changing anything.

Reports the latest tunnel URL in the log, the probe result, the value(s)
recorded in the target file and when each marker was last written.

Examples:
  tunnelsync status             # Styled report
  tunnelsync status --json      # Machine-readable
  tunnelsync status --no-probe  # Skip the network check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			report, err := buildStatus(cmd.Context(), cfg, !noProbe)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal status: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			renderStatus(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "Do not probe the tunnel URL")

	return cmd
}

// buildStatus gathers the report. It only reads files and, when probe is
// set, issues one request to the discovered URL.
func buildStatus(ctx context.Context, cfg *config.Config, probe bool) (*statusReport, error) {
	logger := logging.WithComponent("status")

	scanner, err := tunnel.NewScanner(cfg.Tunnel, logger)
	if err != nil {
		return nil, err
	}
	reconciler, err := reconcile.New(cfg.Target, logger)
	if err != nil {
		return nil, err
	}

	report := &statusReport{
		LogPath: cfg.Tunnel.LogPath,
		Pattern: scanner.Pattern().String(),
		Target:  cfg.Target.Path,
		Key:     cfg.Target.Key,
	}

	scan := scanner.Scan()
	report.ScanStatus = scan.Status.String()
	if scan.Err != nil {
		report.ScanError = scan.Err.Error()
	}
	report.Endpoint = scan.URL

	if scan.Found() && probe {
		check := health.NewProber(cfg.Probe, logger).Probe(ctx, scan.URL)
		report.Probe = &probeReport{
			Status:     check.Status.String(),
			StatusCode: check.StatusCode,
			LatencyMS:  check.Latency.Milliseconds(),
			Message:    check.Message,
		}
	}

	values, err := reconciler.Values(cfg.Target.Path)
	if err != nil {
		report.TargetError = err.Error()
	}
	report.Values = values

	if scan.Found() && len(values) > 0 {
		report.InSync = true
		for _, v := range values {
			if !reconcile.Equal(v, scan.URL) {
				report.InSync = false
				break
			}
		}
	}

	for _, m := range []struct{ name, path string }{
		{"changed", cfg.Markers.Changed},
		{"unhealthy", cfg.Markers.Unhealthy},
	} {
		mr := markerReport{Name: m.name, Path: m.path}
		if m.path != "" {
			if info, err := os.Stat(m.path); err == nil {
				mod := info.ModTime()
				mr.Modified = &mod
			}
		}
		report.Markers = append(report.Markers, mr)
	}

	return report, nil
}

func renderStatus(w io.Writer, r *statusReport) {
	row := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", statusLabelStyle.Render(label), value)
	}

	fmt.Fprintln(w, statusTitleStyle.Render("tunnelsync status"))
	fmt.Fprintln(w, statusDimStyle.Render(strings.Repeat("─", 40)))

	row("Log", statusDimStyle.Render(r.LogPath))
	row("Pattern", statusDimStyle.Render(r.Pattern))
	switch {
	case r.Endpoint != "":
		row("Tunnel URL", statusValueStyle.Render(r.Endpoint))
	case r.ScanError != "":
		row("Tunnel URL", statusFailStyle.Render("unreadable: "+r.ScanError))
	default:
		row("Tunnel URL", statusDimStyle.Render("not found"))
	}

	if r.Probe != nil {
		style := statusFailStyle
		symbol := health.StatusUnhealthy.Symbol()
		if r.Probe.Status == health.StatusHealthy.String() {
			style = statusOKStyle
			symbol = health.StatusHealthy.Symbol()
		}
		row("Probe", style.Render(fmt.Sprintf("%s %s (%dms)", symbol, r.Probe.Message, r.Probe.LatencyMS)))
	}

	fmt.Fprintln(w)
	row("Target", statusDimStyle.Render(r.Target))
	if r.TargetError != "" {
		row(r.Key, statusFailStyle.Render(r.TargetError))
	}
	for _, v := range r.Values {
		row(r.Key, statusValueStyle.Render(v))
	}
	if r.Endpoint != "" && len(r.Values) > 0 {
		if r.InSync {
			row("Sync", statusOKStyle.Render("✓ up to date"))
		} else {
			row("Sync", statusFailStyle.Render("✗ stale, next pass will update"))
		}
	}

	fmt.Fprintln(w)
	for _, m := range r.Markers {
		switch {
		case m.Path == "":
			row(m.Name, statusDimStyle.Render("disabled"))
		case m.Modified == nil:
			row(m.Name, statusDimStyle.Render("never written"))
		default:
			row(m.Name, statusValueStyle.Render(humanize.Time(*m.Modified)))
		}
	}
}
