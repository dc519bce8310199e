package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

// Status represents the reachability of a tunnel endpoint
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

// Config holds the probe policy.
//
// An endpoint counts as reachable when it answers with a status below
// MaxStatus or with one listed in AcceptStatus. A tunnel that forwards a
// 404 or 503 from a half-started application is still routable, which is
// all the reconciler needs to know.
type Config struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxStatus    int           `yaml:"max_status"`    // 0 disables the threshold
	AcceptStatus []int         `yaml:"accept_status"` // Extra codes that still count as reachable
	Method       string        `yaml:"method"`        // HEAD or GET, HEAD when empty
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		MaxStatus:    400,
		AcceptStatus: []int{http.StatusNotFound, http.StatusServiceUnavailable},
		Method:       http.MethodHead,
	}
}

// Accepts reports whether code passes the policy.
func (c *Config) Accepts(code int) bool {
	if c.MaxStatus > 0 && code < c.MaxStatus {
		return true
	}
	return slices.Contains(c.AcceptStatus, code)
}

// ValidateMethod rejects probe methods other than HEAD and GET. Anything
// else would fail or mutate on every pass.
func ValidateMethod(method string) error {
	switch method {
	case "", http.MethodHead, http.MethodGet:
		return nil
	}
	return fmt.Errorf("invalid probe.method %q: must be HEAD or GET", method)
}

// Check represents a probe result
type Check struct {
	URL        string
	Status     Status
	StatusCode int
	Latency    time.Duration
	Message    string
}

// Healthy reports whether the probe passed
func (c *Check) Healthy() bool {
	return c.Status == StatusHealthy
}

// Prober checks whether a tunnel endpoint is routable
type Prober struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewProber creates a prober with the given policy
func NewProber(cfg *Config, logger *slog.Logger) *Prober {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// A redirect already proves the tunnel routes traffic.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.With("component", "health"),
	}
}

// Probe issues a single request against url. Network failures are folded
// into an unhealthy Check and never returned as errors.
func (p *Prober) Probe(ctx context.Context, url string) *Check {
	check := &Check{URL: url, Status: StatusUnhealthy}

	method := p.config.Method
	if method == "" {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		check.Message = fmt.Sprintf("invalid request: %v", err)
		return check
	}
	req.Header.Set("User-Agent", "tunnelsync-probe")

	start := time.Now()
	resp, err := p.client.Do(req)
	check.Latency = time.Since(start)
	if err != nil {
		check.Message = describeError(err)
		p.logger.Debug("probe failed", "url", url, "error", err, "latency", check.Latency)
		return check
	}
	_ = resp.Body.Close()

	check.StatusCode = resp.StatusCode
	if p.config.Accepts(resp.StatusCode) {
		check.Status = StatusHealthy
		check.Message = resp.Status
	} else {
		check.Message = fmt.Sprintf("unacceptable status %s", resp.Status)
	}

	p.logger.Debug("probe complete",
		"url", url,
		"status_code", resp.StatusCode,
		"healthy", check.Healthy(),
		"latency", check.Latency,
	)
	return check
}

// IsReachable reports whether url answers within the timeout with an
// acceptable status.
func (p *Prober) IsReachable(ctx context.Context, url string) bool {
	return p.Probe(ctx, url).Healthy()
}

// describeError shortens transport errors for logs and markers
func describeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return "timeout"
	}
	return err.Error()
}

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusHealthy:
		return "✓"
	case StatusUnhealthy:
		return "✗"
	default:
		return "?"
	}
}
