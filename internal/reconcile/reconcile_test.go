package reconcile

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const composeFile = `services:
  n8n:
    image: n8nio/n8n
    environment:
      - N8N_HOST=localhost
      - WEBHOOK_URL=https://old.example.com/
      - OTHER_WEBHOOK_URL=https://keep.example.com
    ports:
      - "5678:5678"
`

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	r, err := New(&Config{Key: "WEBHOOK_URL"}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.example.com", "https://x.example.com/"},
		{"https://x.example.com/", "https://x.example.com/"},
		{"https://x.example.com///", "https://x.example.com/"},
		{"  https://x.example.com \n", "https://x.example.com/"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("https://x.example.com", "https://x.example.com/") {
		t.Error("trailing slash must not matter")
	}
	if Equal("https://X.example.com", "https://x.example.com") {
		t.Error("comparison must be case-sensitive")
	}
}

func TestReconcileRoundTrip(t *testing.T) {
	path := writeConfig(t, composeFile)
	r := newTestReconciler(t)

	result := r.Reconcile(path, "https://new.example.com")
	if result.Outcome != Changed {
		t.Fatalf("Outcome = %v, want %v (err %v)", result.Outcome, Changed, result.Err)
	}
	if result.Previous != "https://old.example.com/" {
		t.Errorf("Previous = %q", result.Previous)
	}
	if result.Current != "https://new.example.com/" {
		t.Errorf("Current = %q", result.Current)
	}

	want := strings.Replace(composeFile,
		"WEBHOOK_URL=https://old.example.com/",
		"WEBHOOK_URL=https://new.example.com/", 1)
	if got := readFile(t, path); got != want {
		t.Errorf("file content mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestReconcilePreservesMode(t *testing.T) {
	path := writeConfig(t, composeFile)
	r := newTestReconciler(t)

	if result := r.Reconcile(path, "https://new.example.com"); result.Outcome != Changed {
		t.Fatalf("Outcome = %v, err %v", result.Outcome, result.Err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}
}

func TestReconcileIdempotent(t *testing.T) {
	path := writeConfig(t, composeFile)
	r := newTestReconciler(t)

	if result := r.Reconcile(path, "https://new.example.com"); result.Outcome != Changed {
		t.Fatalf("first pass Outcome = %v", result.Outcome)
	}

	// Push mtime into the past so a rewrite would be visible.
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	content := readFile(t, path)

	result := r.Reconcile(path, "https://new.example.com")
	if result.Outcome != NoChange {
		t.Fatalf("second pass Outcome = %v, want %v", result.Outcome, NoChange)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Error("file was replaced on a no-change pass")
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	if readFile(t, path) != content {
		t.Error("content changed on a no-change pass")
	}
}

func TestReconcileSlashInsensitive(t *testing.T) {
	path := writeConfig(t, "WEBHOOK_URL=https://x.example.com/\n")
	r := newTestReconciler(t)

	before, _ := os.Stat(path)
	result := r.Reconcile(path, "https://x.example.com")
	if result.Outcome != NoChange {
		t.Errorf("Outcome = %v, want %v", result.Outcome, NoChange)
	}
	after, _ := os.Stat(path)
	if !os.SameFile(before, after) {
		t.Error("file replaced although only the slash differed")
	}
}

func TestReconcileChangedReplacesInode(t *testing.T) {
	path := writeConfig(t, "WEBHOOK_URL=https://old.example.com/\n")
	r := newTestReconciler(t)

	before, _ := os.Stat(path)
	if result := r.Reconcile(path, "https://new.example.com"); result.Outcome != Changed {
		t.Fatalf("Outcome = %v, err %v", result.Outcome, result.Err)
	}
	after, _ := os.Stat(path)
	if os.SameFile(before, after) {
		t.Error("expected the file to be swapped in by rename")
	}
}

func TestReconcileNotFound(t *testing.T) {
	r := newTestReconciler(t)

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.yml")
		result := r.Reconcile(path, "https://new.example.com")
		if result.Outcome != NotFound {
			t.Errorf("Outcome = %v, want %v", result.Outcome, NotFound)
		}
		if !errors.Is(result.Err, ErrConfigMissing) {
			t.Errorf("Err = %v, want ErrConfigMissing", result.Err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("reconciler must not create the file")
		}
	})

	t.Run("missing key", func(t *testing.T) {
		content := "services:\n  app:\n    environment:\n      - OTHER_WEBHOOK_URL=https://a.example.com\n"
		path := writeConfig(t, content)
		result := r.Reconcile(path, "https://new.example.com")
		if result.Outcome != NotFound {
			t.Errorf("Outcome = %v, want %v", result.Outcome, NotFound)
		}
		if !errors.Is(result.Err, ErrKeyNotFound) {
			t.Errorf("Err = %v, want ErrKeyNotFound", result.Err)
		}
		if readFile(t, path) != content {
			t.Error("file modified although key was missing")
		}
	})
}

func TestReconcileFieldForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "env file",
			in:   "A=1\nWEBHOOK_URL=https://old.example.com\nB=2\n",
			want: "A=1\nWEBHOOK_URL=https://new.example.com/\nB=2\n",
		},
		{
			name: "empty value",
			in:   "WEBHOOK_URL=\n",
			want: "WEBHOOK_URL=https://new.example.com/\n",
		},
		{
			name: "double quoted",
			in:   "WEBHOOK_URL=\"https://old.example.com/\"\n",
			want: "WEBHOOK_URL=\"https://new.example.com/\"\n",
		},
		{
			name: "single quoted yaml item",
			in:   "      - 'WEBHOOK_URL=https://old.example.com/'\n",
			want: "      - 'WEBHOOK_URL=https://new.example.com/'\n",
		},
		{
			name: "double quoted yaml item",
			in:   "      - \"WEBHOOK_URL=https://old.example.com/\"\n",
			want: "      - \"WEBHOOK_URL=https://new.example.com/\"\n",
		},
		{
			name: "crlf",
			in:   "A=1\r\nWEBHOOK_URL=https://old.example.com/\r\nB=2\r\n",
			want: "A=1\r\nWEBHOOK_URL=https://new.example.com/\r\nB=2\r\n",
		},
		{
			name: "no trailing newline",
			in:   "WEBHOOK_URL=https://old.example.com",
			want: "WEBHOOK_URL=https://new.example.com/",
		},
		{
			name: "every occurrence",
			in:   "- WEBHOOK_URL=https://old.example.com/\n- WEBHOOK_URL=https://new.example.com/\n",
			want: "- WEBHOOK_URL=https://new.example.com/\n- WEBHOOK_URL=https://new.example.com/\n",
		},
	}

	r := newTestReconciler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.in)
			result := r.Reconcile(path, "https://new.example.com")
			if result.Outcome != Changed {
				t.Fatalf("Outcome = %v, want %v (err %v)", result.Outcome, Changed, result.Err)
			}
			if got := readFile(t, path); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReconcileThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.env")
	link := filepath.Join(dir, "link.env")
	if err := os.WriteFile(real, []byte("WEBHOOK_URL=https://old.example.com/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	r := newTestReconciler(t)
	if result := r.Reconcile(link, "https://new.example.com"); result.Outcome != Changed {
		t.Fatalf("Outcome = %v, err %v", result.Outcome, result.Err)
	}

	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("symlink was replaced by a regular file")
	}
	if got := readFile(t, real); got != "WEBHOOK_URL=https://new.example.com/\n" {
		t.Errorf("target content = %q", got)
	}
}

// TestReconcileInterruptedWrite simulates the process dying after the
// temporary file is written but before the rename.
func TestReconcileInterruptedWrite(t *testing.T) {
	path := writeConfig(t, composeFile)
	r := newTestReconciler(t)

	crash := errors.New("killed before rename")
	r.writeFile = func(filename string, data []byte, perm os.FileMode) error {
		tmp, err := os.CreateTemp(filepath.Dir(filename), ".tmp-"+filepath.Base(filename))
		if err != nil {
			return err
		}
		_, _ = tmp.Write(data[:len(data)/2])
		_ = tmp.Close()
		return crash
	}

	result := r.Reconcile(path, "https://new.example.com")
	if result.Outcome != Failed {
		t.Fatalf("Outcome = %v, want %v", result.Outcome, Failed)
	}
	if !errors.Is(result.Err, crash) {
		t.Errorf("Err = %v, want wrapped crash error", result.Err)
	}
	if got := readFile(t, path); got != composeFile {
		t.Errorf("target changed after interrupted write: %q", got)
	}

	// The next pass starts from the intact original.
	r2 := newTestReconciler(t)
	if result := r2.Reconcile(path, "https://new.example.com"); result.Outcome != Changed {
		t.Fatalf("retry Outcome = %v, err %v", result.Outcome, result.Err)
	}
	if !strings.Contains(readFile(t, path), "WEBHOOK_URL=https://new.example.com/\n") {
		t.Error("retry did not apply the update")
	}
}

func TestReconcileEmptyCandidate(t *testing.T) {
	path := writeConfig(t, composeFile)
	r := newTestReconciler(t)

	result := r.Reconcile(path, "  ")
	if result.Outcome != Failed || !errors.Is(result.Err, ErrInvalidCandidate) {
		t.Errorf("got %v/%v, want Failed/ErrInvalidCandidate", result.Outcome, result.Err)
	}
	if readFile(t, path) != composeFile {
		t.Error("file modified for empty candidate")
	}
}

func TestValues(t *testing.T) {
	r := newTestReconciler(t)

	path := writeConfig(t, composeFile)
	values, err := r.Values(path)
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(values) != 1 || values[0] != "https://old.example.com/" {
		t.Errorf("Values = %v", values)
	}

	if _, err := r.Values(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrConfigMissing) {
		t.Errorf("err = %v, want ErrConfigMissing", err)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	for _, key := range []string{"", "WEBHOOK URL", "A=B", "1ABC"} {
		if _, err := New(&Config{Key: key}, nil); err == nil {
			t.Errorf("New(%q) expected error", key)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{NotFound, "not_found"},
		{NoChange, "no_change"},
		{Changed, "changed"},
		{Failed, "failed"},
		{Outcome(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}
