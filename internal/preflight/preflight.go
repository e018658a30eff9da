package preflight

import (
	"context"
	"net/http"

	"uttervault/internal/config"
)

// MinFreeBytes is the free space below which the output directory check fails.
const MinFreeBytes uint64 = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory and storage checks applicable to cfg.
func RunAll(ctx context.Context, cfg *config.Config, client HTTPDoer) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Output free space", cfg.Paths.OutputDir, MinFreeBytes),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	switch cfg.Storage.Backend {
	case "fs":
		results = append(results, CheckDirectoryAccess("Recording storage", cfg.Storage.Dir))
	case "http":
		if client == nil {
			client = &http.Client{Timeout: cfg.StorageTimeout()}
		}
		results = append(results, CheckStorageEndpoint(ctx, client, cfg.Storage.BaseURL))
	}
	return results
}

// CheckSystemDeps evaluates the external binaries required by cfg.
func CheckSystemDeps(cfg *config.Config) []Status {
	if cfg == nil {
		return nil
	}
	requirements := []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcode.FFmpegBinary,
			Description: "Converts m4a/mp4/aac recordings to WAV",
			Optional:    !cfg.Transcode.Enabled,
		},
	}
	return CheckBinaries(requirements)
}
