package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"uttervault/internal/api"
	"uttervault/internal/catalog"
	"uttervault/internal/config"
	"uttervault/internal/export"
	"uttervault/internal/logging"
	"uttervault/internal/observe"
	"uttervault/internal/preflight"
)

// Dependencies are the collaborators a Daemon serves requests with.
type Dependencies struct {
	Repository catalog.Repository
	Pipeline   *export.Pipeline
	Metrics    *observe.Metrics
	HTTPClient preflight.HTTPDoer
}

// Daemon serves the HTTP API and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *export.Pipeline
	catalog  *api.CatalogService
	metrics  *observe.Metrics
	client   preflight.HTTPDoer
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt atomic.Int64
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	Downloading  bool
	Dependencies []preflight.Status
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Repository == nil || deps.Pipeline == nil {
		return nil, errors.New("daemon requires config, repository, and export pipeline")
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		pipeline: deps.Pipeline,
		catalog:  api.NewCatalogService(deps.Repository, cfg.Store.PageSize),
		metrics:  deps.Metrics,
		client:   deps.HTTPClient,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another uttervaultd instance is already running")
	}

	var runCtx context.Context
	runCtx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.cancel = nil
		return err
	}

	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("uttervault daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("uttervault daemon stopped")
}

// Address returns the address the API listens on, empty before Start.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Handler returns the HTTP handler serving the API.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Downloading:  d.pipeline.Downloading(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Checks:       preflight.RunAll(ctx, d.cfg, d.client),
	}
	if started := d.startedAt.Load(); started != 0 {
		status.StartedAt = time.Unix(0, started)
	}
	return status
}
