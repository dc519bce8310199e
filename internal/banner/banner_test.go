package banner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alekspetrov/tunnelsync/internal/config"
)

func TestStartupWatch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Textfile = "/var/lib/node_exporter/tunnelsync.prom"

	var buf bytes.Buffer
	StartupWatch(&buf, "1.2.3", cfg)
	out := buf.String()

	for _, want := range []string{
		"tunnelsync v1.2.3",
		"cloudflare (/shared_logs/cloudflared.log)",
		"WEBHOOK_URL in /home/node/host_files/docker-compose.yml",
		"@every 30s, log writes",
		"tunnelsync.prom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestStartupWatchTriggers(t *testing.T) {
	tests := []struct {
		name      string
		schedule  string
		followLog bool
		pattern   string
		want      []string
	}{
		{"schedule only", "@every 1m", false, "", []string{"Triggers: @every 1m\n"}},
		{"log only", "", true, "", []string{"Triggers: log writes\n"}},
		{"none", "", false, "", []string{"Triggers: startup only\n"}},
		{"custom pattern", "@every 1m", false, `https://\S+`, []string{"custom pattern"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Watch.Schedule = tt.schedule
			cfg.Watch.FollowLog = tt.followLog
			cfg.Tunnel.Pattern = tt.pattern

			var buf bytes.Buffer
			StartupWatch(&buf, "0.1.0", cfg)

			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("banner missing %q:\n%s", want, buf.String())
				}
			}
			if strings.Contains(buf.String(), "Metrics:") {
				t.Error("metrics line shown without a textfile")
			}
		})
	}
}

func TestPrintCompact(t *testing.T) {
	var buf bytes.Buffer
	PrintCompact(&buf, "0.1.0")
	if got := buf.String(); got != "tunnelsync v0.1.0 │ "+Tagline+"\n" {
		t.Errorf("PrintCompact = %q", got)
	}
}
