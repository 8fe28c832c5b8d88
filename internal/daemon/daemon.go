package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelrecon/internal/config"
	"reelrecon/internal/logging"
	"reelrecon/internal/session"
)

// ErrAlreadyRunning reports that another watcher holds the lock file.
var ErrAlreadyRunning = errors.New("another reelrecond instance is already running")

// Daemon coordinates the watcher session and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *session.Session

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	StorePath    string
	APIAddress   string
	Session      session.Status
}

// New constructs a daemon around an already wired session.
func New(cfg *config.Config, sess *session.Session, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || sess == nil {
		return nil, errors.New("daemon requires config and session")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		session:  sess,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, starts the status API, and runs the session in
// the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.runErr = nil
	d.running.Store(true)
	go func(done chan struct{}) {
		defer close(done)
		if err := d.session.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "session stopped", "session_stopped",
				logging.Error(err),
				logging.String(logging.FieldImpact, "jobs are no longer tracked"),
			)
			d.mu.Lock()
			d.runErr = err
			d.mu.Unlock()
		}
	}(d.done)

	d.logger.Info("reelrecon watcher started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Done is closed once the session stops after Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// Err returns the error that stopped the session, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop stops the session and API and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelrecon watcher stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StorePath:    d.cfg.StorePath(),
		APIAddress:   d.api.address(),
		Session:      d.session.Status(),
	}
}

// Session returns the wrapped session.
func (d *Daemon) Session() *session.Session {
	return d.session
}
