package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"uttervault/internal/config"
	"uttervault/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, dependency and storage readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderStatusLine("Store", statusInfo, storeSummary(cfg), colorize))
			fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, storageSummary(cfg), colorize))
			fmt.Fprintln(out, renderStatusLine("Output directory", statusInfo, cfg.Paths.OutputDir, colorize))
			if err := cfg.RequireStore(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Store settings", statusError, err.Error(), colorize))
			}
			if err := cfg.RequireStorage(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Storage settings", statusError, err.Error(), colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Processes", colorize))
			fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, lockState(cfg.DaemonLockPath(), "running", "not running"), colorize))
			fmt.Fprintln(out, renderStatusLine("Export", statusInfo, lockState(cfg.ExportLockPath(), "in progress", "idle"), colorize))

			fmt.Fprintln(out)
			renderDependencies(out, preflight.CheckSystemDeps(cfg), colorize)

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
			for _, check := range preflight.RunAll(commandCtx(cmd), cfg, nil) {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			return nil
		},
	}
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			statuses := preflight.CheckSystemDeps(cfg)
			renderDependencies(out, statuses, shouldColorize(out))
			if missing := preflight.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func renderDependencies(out io.Writer, statuses []preflight.Status, colorize bool) {
	fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
	for _, dep := range statuses {
		kind := statusOK
		message := dep.Path
		switch {
		case dep.Available:
		case dep.Optional:
			kind = statusWarn
			message = dep.Detail + " (optional)"
		default:
			kind = statusError
			message = dep.Detail
		}
		if dep.Description != "" {
			message += " - " + dep.Description
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
	}
}

func storeSummary(cfg *config.Config) string {
	if cfg.Store.Driver == "sqlite" {
		return "sqlite " + cfg.Store.SQLitePath
	}
	return fmt.Sprintf("postgres (dsn configured: %s)", yesNo(cfg.Store.DSN != ""))
}

func storageSummary(cfg *config.Config) string {
	switch cfg.Storage.Backend {
	case "fs":
		return "fs " + cfg.Storage.Dir
	case "s3":
		return fmt.Sprintf("s3 bucket %s", cfg.Storage.Bucket)
	default:
		return fmt.Sprintf("http %s bucket %s (key configured: %s)", cfg.Storage.BaseURL, cfg.Storage.Bucket, yesNo(cfg.Storage.APIKey != ""))
	}
}

// lockState checks whether path is locked without holding it.
func lockState(path, held, free string) string {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return "unknown (" + err.Error() + ")"
	}
	if !ok {
		return held
	}
	_ = lock.Unlock()
	return free
}
