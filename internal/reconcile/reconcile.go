// Package reconcile keeps a single KEY=VALUE field of an otherwise opaque
// text file pointed at the current tunnel endpoint.
//
// The file is never re-serialized: only the value bytes of the matched field
// change, and the new content replaces the old one with a rename from a
// temporary file in the same directory. Readers see either the old or the
// new file, never a partial write.
package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// Outcome classifies a reconciliation pass.
type Outcome int

const (
	// NotFound means the file or the key is missing. Nothing is written.
	NotFound Outcome = iota
	// NoChange means the recorded value already matches. Nothing is written.
	NoChange
	// Changed means the file was rewritten and renamed into place.
	Changed
	// Failed means the file could not be read or replaced. The original is
	// left as it was.
	Failed
)

// String returns the outcome name used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case NoChange:
		return "no_change"
	case Changed:
		return "changed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrConfigMissing is reported when the target file does not exist.
	ErrConfigMissing = errors.New("config file not found")
	// ErrKeyNotFound is reported when the file has no KEY= field.
	ErrKeyNotFound = errors.New("config key not found")
	// ErrInvalidCandidate is reported for an empty candidate address.
	ErrInvalidCandidate = errors.New("invalid candidate address")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Config holds the reconciliation target
type Config struct {
	Path string `yaml:"path"` // File holding the KEY=VALUE field
	Key  string `yaml:"key"`  // Field name, e.g. WEBHOOK_URL
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: "/home/node/host_files/docker-compose.yml",
		Key:  "WEBHOOK_URL",
	}
}

// Result describes what a pass found and did.
type Result struct {
	Outcome     Outcome
	Path        string
	Previous    string // Recorded value, first occurrence, as found
	Current     string // Canonical candidate
	Occurrences int
	Err         error
}

// Reconciler rewrites the configured field when it drifts from the
// candidate endpoint.
type Reconciler struct {
	config    *Config
	field     *regexp.Regexp
	logger    *slog.Logger
	writeFile func(filename string, data []byte, perm os.FileMode) error
}

// New creates a reconciler for cfg.Key
func New(cfg *Config, logger *slog.Logger) (*Reconciler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateKey(cfg.Key); err != nil {
		return nil, err
	}

	return &Reconciler{
		config:    cfg,
		field:     fieldPattern(cfg.Key),
		logger:    logger.With("component", "reconcile"),
		writeFile: atomicwriter.WriteFile,
	}, nil
}

// ValidateKey checks that key can name a KEY=VALUE field.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid config key: %q", key)
	}
	return nil
}

// fieldPattern matches KEY=VALUE up to the end of the line. The leading
// group keeps OTHER_KEY= from matching KEY=.
func fieldPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(key) + `=([^\r\n]*)`)
}

// Canonical returns url trimmed and with exactly one trailing slash.
func Canonical(url string) string {
	url = strings.TrimSpace(url)
	return strings.TrimRight(url, "/") + "/"
}

// Equal compares two addresses case-sensitively, ignoring surrounding
// whitespace and trailing slashes.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// span is the byte range of one field value, quotes and padding excluded.
type span struct {
	start, end int
}

// findValues locates every value of the configured field in content.
func (r *Reconciler) findValues(content []byte) []span {
	var spans []span
	for _, m := range r.field.FindAllSubmatchIndex(content, -1) {
		start, end := m[4], m[5]
		for start < end && isSpace(content[start]) {
			start++
		}
		for end > start && isSpace(content[end-1]) {
			end--
		}
		switch {
		case end-start >= 2 && isQuote(content[start]) && content[end-1] == content[start]:
			start++
			end--
		case end > start && isQuote(content[end-1]) &&
			!bytes.ContainsRune(content[start:end-1], rune(content[end-1])):
			// Closing quote of an item such as - 'KEY=VALUE'.
			end--
		}
		spans = append(spans, span{start: start, end: end})
	}
	return spans
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func isQuote(b byte) bool { return b == '"' || b == '\'' }

// Values returns the recorded values of the field in configPath.
func (r *Reconciler) Values(configPath string) ([]string, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigMissing
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	spans := r.findValues(content)
	if len(spans) == 0 {
		return nil, ErrKeyNotFound
	}

	values := make([]string, 0, len(spans))
	for _, s := range spans {
		values = append(values, string(content[s.start:s.end]))
	}
	return values, nil
}

// Apply reconciles the configured file against candidate
func (r *Reconciler) Apply(candidate string) *Result {
	return r.Reconcile(r.config.Path, candidate)
}

// Reconcile points every KEY= field in configPath at candidate. The file is
// only touched when at least one recorded value differs from the canonical
// candidate.
func (r *Reconciler) Reconcile(configPath, candidate string) *Result {
	result := &Result{Path: configPath, Current: Canonical(candidate)}

	if strings.TrimSpace(candidate) == "" {
		result.Outcome = Failed
		result.Err = ErrInvalidCandidate
		return result
	}

	// Write through symlinks so the link itself survives the rename.
	target, err := filepath.EvalSymlinks(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("config file not found", "path", configPath)
			result.Outcome = NotFound
			result.Err = ErrConfigMissing
			return result
		}
		result.Outcome = Failed
		result.Err = fmt.Errorf("failed to resolve config path: %w", err)
		return result
	}

	info, err := os.Stat(target)
	if err != nil {
		result.Outcome = Failed
		result.Err = fmt.Errorf("failed to stat config: %w", err)
		return result
	}

	content, err := os.ReadFile(target)
	if err != nil {
		result.Outcome = Failed
		result.Err = fmt.Errorf("failed to read config: %w", err)
		return result
	}

	spans := r.findValues(content)
	result.Occurrences = len(spans)
	if len(spans) == 0 {
		r.logger.Warn("config key not found", "path", configPath, "key", r.config.Key)
		result.Outcome = NotFound
		result.Err = ErrKeyNotFound
		return result
	}
	result.Previous = string(content[spans[0].start:spans[0].end])

	stale := 0
	for _, s := range spans {
		if !Equal(string(content[s.start:s.end]), result.Current) {
			stale++
		}
	}
	if stale == 0 {
		result.Outcome = NoChange
		return result
	}

	updated := splice(content, spans, []byte(result.Current))

	r.logger.Info("updating config",
		"path", configPath,
		"key", r.config.Key,
		"from", result.Previous,
		"to", result.Current,
		"occurrences", len(spans),
	)

	if err := r.writeFile(target, updated, info.Mode().Perm()); err != nil {
		result.Outcome = Failed
		result.Err = fmt.Errorf("failed to replace config: %w", err)
		return result
	}

	result.Outcome = Changed
	return result
}

// splice replaces every span of content with value, copying all other bytes.
func splice(content []byte, spans []span, value []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(content) + len(spans)*len(value))

	last := 0
	for _, s := range spans {
		buf.Write(content[last:s.start])
		buf.Write(value)
		last = s.end
	}
	buf.Write(content[last:])
	return buf.Bytes()
}
