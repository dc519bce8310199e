// Package banner prints the startup header for long-running commands.
// Standard output carries pass results, so callers pass stderr.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/alekspetrov/tunnelsync/internal/config"
)

// Tagline is the project tagline
const Tagline = "Tunnel URL → webhook config"

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// PrintCompact prints a single-line banner
func PrintCompact(w io.Writer, version string) {
	fmt.Fprintf(w, "tunnelsync v%s │ %s\n", version, Tagline)
}

// StartupWatch prints the header for 'tunnelsync watch'
func StartupWatch(w io.Writer, version string, cfg *config.Config) {
	fmt.Fprintln(w)
	PrintCompact(w, version)
	fmt.Fprintln(w, rule)

	provider := cfg.Tunnel.Provider
	if cfg.Tunnel.Pattern != "" {
		provider = "custom pattern"
	} else if cfg.Tunnel.Domain != "" {
		provider = cfg.Tunnel.Domain
	}

	fmt.Fprintf(w, "Tunnel:   %s (%s)\n", provider, cfg.Tunnel.LogPath)
	fmt.Fprintf(w, "Target:   %s in %s\n", cfg.Target.Key, cfg.Target.Path)

	var triggers []string
	if cfg.Watch.Schedule != "" {
		triggers = append(triggers, cfg.Watch.Schedule)
	}
	if cfg.Watch.FollowLog {
		triggers = append(triggers, "log writes")
	}
	if len(triggers) == 0 {
		triggers = append(triggers, "startup only")
	}
	fmt.Fprintf(w, "Triggers: %s\n", strings.Join(triggers, ", "))

	if cfg.Metrics != nil && cfg.Metrics.Textfile != "" {
		fmt.Fprintf(w, "Metrics:  %s\n", cfg.Metrics.Textfile)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Watching... (Ctrl+C to stop)")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
