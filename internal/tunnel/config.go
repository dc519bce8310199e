package tunnel

import "time"

// Config holds log scanner configuration
type Config struct {
	Provider     string        `yaml:"provider"`       // "cloudflare", "ngrok", "custom"
	Domain       string        `yaml:"domain"`         // Overrides the provider's tunnel domain
	Pattern      string        `yaml:"pattern"`        // Full regexp, overrides provider and domain
	LogPath      string        `yaml:"log_path"`       // Tunnel process log file
	TailLines    int           `yaml:"tail_lines"`     // Trailing lines to scan
	MaxTailBytes int64         `yaml:"max_tail_bytes"` // Hard cap on bytes read from the tail
	ScanAttempts int           `yaml:"scan_attempts"`  // 1 disables rescanning
	ScanInterval time.Duration `yaml:"scan_interval"`  // Delay between rescans
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider:     "cloudflare",
		LogPath:      "/shared_logs/cloudflared.log",
		TailLines:    500,
		MaxTailBytes: 1 << 20,
		ScanAttempts: 1,
		ScanInterval: 2 * time.Second,
	}
}
