// Package daemonrun hosts the uttervaultd process lifecycle: logging setup,
// pid file, export stack wiring, and the HTTP daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"uttervault/internal/bootstrap"
	"uttervault/internal/config"
	"uttervault/internal/daemon"
	"uttervault/internal/logging"
	"uttervault/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, receives the API address once the daemon is serving.
	Ready func(address string)
}

// Run starts uttervaultd and blocks until ctx is cancelled or a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logOpts := logging.OptionsFromConfig(cfg)
	if opts.LogLevel != "" {
		logOpts.Level = opts.LogLevel
	}
	logOpts.Development = opts.Development
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog() //nolint:errcheck

	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "uttervaultd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stack, err := bootstrap.Build(signalCtx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("build export stack", logging.Error(err))
		return err
	}
	defer stack.Close()

	d, err := daemon.New(cfg, daemon.Dependencies{
		Repository: stack.Repository,
		Pipeline:   stack.Pipeline,
		Metrics:    stack.Metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api_bind and that no other uttervaultd holds "+cfg.DaemonLockPath()),
		)
		return err
	}
	defer d.Stop()

	for _, check := range preflight.RunAll(signalCtx, cfg, nil) {
		if check.Passed {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "exports may produce archives without audio"),
		)
	}

	if opts.Ready != nil {
		opts.Ready(d.Address())
	}

	<-signalCtx.Done()
	logger.Info("uttervault daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.Bool("store_dsn_present", cfg.Store.DSN != ""),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.Bool("storage_key_present", cfg.Storage.APIKey != ""),
		logging.Bool("transcode_enabled", cfg.Transcode.Enabled),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		attrs = append(attrs,
			logging.Bool("ffmpeg_available", dep.Available),
			logging.String("ffmpeg_binary", dep.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
