package tunnel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"

	"github.com/sethvargo/go-retry"
)

// ScanStatus classifies the outcome of a log scan.
type ScanStatus int

const (
	// ScanNotFound means the log is absent or holds no endpoint yet.
	ScanNotFound ScanStatus = iota
	// ScanFound means an endpoint address was extracted.
	ScanFound
	// ScanIOError means the log exists but could not be read.
	ScanIOError
)

// String returns the status name used in logs
func (s ScanStatus) String() string {
	switch s {
	case ScanNotFound:
		return "not_found"
	case ScanFound:
		return "found"
	case ScanIOError:
		return "io_error"
	default:
		return "unknown"
	}
}

// Scan is the result of looking for the latest endpoint in the tunnel log.
type Scan struct {
	Status ScanStatus
	URL    string
	Err    error
}

// Found reports whether the scan produced an address.
func (s Scan) Found() bool {
	return s.Status == ScanFound
}

var errNoEndpoint = errors.New("no endpoint in log yet")

// Scanner extracts endpoint addresses from the tunnel process log.
type Scanner struct {
	config  *Config
	pattern *regexp.Regexp
	logger  *slog.Logger
}

// NewScanner creates a scanner for the configured provider
func NewScanner(cfg *Config, logger *slog.Logger) (*Scanner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pattern, err := CompilePattern(cfg)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		config:  cfg,
		pattern: pattern,
		logger:  logger,
	}, nil
}

// Pattern returns the endpoint pattern in use
func (s *Scanner) Pattern() *regexp.Regexp {
	return s.pattern
}

// FindLatestEndpoint scans the trailing tailLines of logPath and returns the
// last endpoint address in document order. Earlier matches belong to
// previous tunnel incarnations and are ignored.
func (s *Scanner) FindLatestEndpoint(logPath string, tailLines int) Scan {
	if _, err := os.Stat(logPath); err != nil {
		if os.IsNotExist(err) {
			return Scan{Status: ScanNotFound}
		}
		return Scan{Status: ScanIOError, Err: err}
	}

	window, err := readTail(logPath, tailLines, s.config.MaxTailBytes)
	if err != nil {
		if os.IsNotExist(err) {
			// Rotated away between stat and open.
			return Scan{Status: ScanNotFound}
		}
		return Scan{Status: ScanIOError, Err: err}
	}

	matches := s.pattern.FindAll(window, -1)
	if len(matches) == 0 {
		return Scan{Status: ScanNotFound}
	}

	return Scan{Status: ScanFound, URL: string(matches[len(matches)-1])}
}

// Scan runs FindLatestEndpoint with the configured log path and window.
func (s *Scanner) Scan() Scan {
	return s.FindLatestEndpoint(s.config.LogPath, s.config.TailLines)
}

// WaitForEndpoint rescans the log up to ScanAttempts times, ScanInterval
// apart, until an address shows up. It returns the last scan on exhaustion
// or cancellation.
func (s *Scanner) WaitForEndpoint(ctx context.Context) Scan {
	attempts := s.config.ScanAttempts
	if attempts <= 1 {
		return s.Scan()
	}

	interval := s.config.ScanInterval
	if interval <= 0 {
		interval = DefaultConfig().ScanInterval
	}

	var last Scan
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		last = s.Scan()
		if last.Found() {
			return nil
		}
		s.logger.Debug("no endpoint yet, rescanning",
			"attempt", attempt,
			"max_attempts", attempts,
			"status", last.Status.String(),
		)
		return retry.RetryableError(errNoEndpoint)
	})

	if !last.Found() {
		s.logger.Info("no endpoint found in log",
			"path", s.config.LogPath,
			"attempts", attempt,
			"interval", interval,
		)
	}
	return last
}
