// Package watch repeats reconciliation passes on a cron schedule and, when
// enabled, shortly after the tunnel log is written.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/tunnelsync/internal/agent"
	"github.com/alekspetrov/tunnelsync/internal/config"
)

// Runner performs one pass
type Runner interface {
	Run(ctx context.Context) *agent.Result
}

// Watcher schedules passes. At most one pass runs at a time; triggers that
// arrive while a pass is in flight are dropped, the next trigger catches up.
type Watcher struct {
	runner   Runner
	config   *config.WatchConfig
	logPath  string
	onResult func(*agent.Result)
	logger   *slog.Logger

	pass sync.Mutex // held for the duration of a pass

	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	fsw      *fsnotify.Watcher
	running  bool
	passes   int
	skipped  int
	lastPass time.Time
	wg       sync.WaitGroup
}

// Status is a snapshot of the watcher
type Status struct {
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule"`
	Following bool      `json:"following"`
	Passes    int       `json:"passes"`
	Skipped   int       `json:"skipped"`
	LastPass  time.Time `json:"last_pass"`
	NextRun   time.Time `json:"next_run"`
}

// New creates a watcher. onResult is called after every pass.
func New(runner Runner, cfg *config.WatchConfig, logPath string, onResult func(*agent.Result), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if onResult == nil {
		onResult = func(*agent.Result) {}
	}
	logger = logger.With("component", "watch")

	return &Watcher{
		runner:   runner,
		config:   cfg,
		logPath:  logPath,
		onResult: onResult,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
	}
}

// Start runs an initial pass and begins scheduling. It returns once the
// schedule is installed; passes run in the background until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if w.config.Schedule != "" {
		entryID, err := w.cron.AddFunc(w.config.Schedule, func() {
			w.Trigger(ctx, "schedule")
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", w.config.Schedule, err)
		}
		w.entryID = entryID
	}

	if w.config.FollowLog && w.logPath != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create log watcher: %w", err)
		}
		// The directory, not the file: the log may not exist yet and is
		// replaced on rotation.
		dir := filepath.Dir(w.logPath)
		switch err := fsw.Add(dir); {
		case err == nil:
			w.fsw = fsw
			w.wg.Add(1)
			go w.followLog(ctx, fsw)
		case errors.Is(err, os.ErrNotExist):
			// Tunnel not started yet. Scheduled passes still pick it up.
			_ = fsw.Close()
			w.logger.Warn("tunnel log directory missing, following disabled", "dir", dir)
		default:
			_ = fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.cron.Start()
	w.running = true

	w.logger.Info("watch started",
		"schedule", w.config.Schedule,
		"follow_log", w.fsw != nil,
		"next_run", w.cron.Entry(w.entryID).Next,
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Trigger(ctx, "startup")
	}()

	return nil
}

// Stop halts scheduling and waits for an in-flight pass to finish
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()

	cronCtx := w.cron.Stop()
	<-cronCtx.Done()
	w.wg.Wait()

	// Wait out a pass started by a debounce timer
	w.pass.Lock()
	w.logger.Info("watch stopped")
	w.pass.Unlock()
}

// Run starts the watcher and blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Trigger runs a pass now unless one is already in flight. It reports
// whether a pass ran.
func (w *Watcher) Trigger(ctx context.Context, source string) bool {
	if !w.pass.TryLock() {
		w.mu.Lock()
		w.skipped++
		w.mu.Unlock()
		w.logger.Debug("pass already running, trigger dropped", "source", source)
		return false
	}
	defer w.pass.Unlock()

	if ctx.Err() != nil {
		return false
	}

	w.logger.Debug("pass triggered", "source", source)
	result := w.runner.Run(ctx)

	w.mu.Lock()
	w.passes++
	w.lastPass = time.Now()
	w.mu.Unlock()

	w.onResult(result)
	return true
}

// IsRunning returns whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Status returns a snapshot of the watcher
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := Status{
		Running:   w.running,
		Schedule:  w.config.Schedule,
		Following: w.fsw != nil,
		Passes:    w.passes,
		Skipped:   w.skipped,
		LastPass:  w.lastPass,
	}
	if w.running && w.entryID != 0 {
		status.NextRun = w.cron.Entry(w.entryID).Next
	}
	return status
}

// followLog triggers a pass once the tunnel log has been quiet for the
// debounce period.
func (w *Watcher) followLog(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	target := filepath.Clean(w.logPath)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.config.Debounce, func() {
				if w.IsRunning() {
					w.Trigger(ctx, "log")
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("log watcher error", "error", err)
		}
	}
}

// cronLogger adapts slog to cron's logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
