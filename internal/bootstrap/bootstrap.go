package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"uttervault/internal/archive"
	"uttervault/internal/blobstore"
	"uttervault/internal/catalog"
	"uttervault/internal/config"
	"uttervault/internal/export"
	"uttervault/internal/logging"
	"uttervault/internal/observe"
	"uttervault/internal/transcode"
)

// Stack is a fully wired export stack. Close releases the repository.
type Stack struct {
	Repository catalog.Repository
	Downloader blobstore.Downloader
	Engine     *transcode.Engine
	Assembler  *archive.Assembler
	Pipeline   *export.Pipeline
	Metrics    *observe.Metrics

	closers []func() error
}

// Options overrides collaborators Build would otherwise construct.
type Options struct {
	Logger     *slog.Logger
	Metrics    *observe.Metrics
	Repository catalog.Repository
	Downloader blobstore.Downloader
	Deliverer  export.Deliverer
}

// OpenRepository connects to the repository selected by cfg.Store.Driver.
func OpenRepository(ctx context.Context, cfg *config.Config) (catalog.Repository, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if err := cfg.RequireStore(); err != nil {
			return nil, nil, err
		}
		pool, err := catalog.OpenPostgresPool(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewPostgresRepository(pool, cfg.Store.BatchSize), func() error { pool.Close(); return nil }, nil
	case "sqlite":
		repo, err := catalog.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.BatchSize)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// Build wires every export collaborator from cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	stack := &Stack{Metrics: opts.Metrics}
	if stack.Metrics == nil {
		stack.Metrics = observe.DefaultMetrics()
	}

	stack.Repository = opts.Repository
	if stack.Repository == nil {
		repo, closeFn, err := OpenRepository(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open repository: %w", err)
		}
		stack.Repository = repo
		stack.closers = append(stack.closers, closeFn)
	}

	stack.Downloader = opts.Downloader
	if stack.Downloader == nil {
		if err := cfg.RequireStorage(); err != nil {
			_ = stack.Close()
			return nil, err
		}
		downloader, err := blobstore.New(ctx, cfg)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("open blob storage: %w", err)
		}
		stack.Downloader = downloader
	}

	var transcoder archive.Transcoder
	if cfg.Transcode.Enabled {
		stack.Engine = transcode.NewEngine(transcode.Options{
			FFmpegBinary: cfg.Transcode.FFmpegBinary,
			WorkspaceDir: cfg.Transcode.WorkspaceDir,
			Logger:       logger,
		})
		transcoder = stack.Engine
	}

	stack.Assembler = archive.NewAssembler(archive.Options{
		Downloader:  stack.Downloader,
		Transcoder:  transcoder,
		Concurrency: cfg.Export.Concurrency,
		Logger:      logger,
		Metrics:     stack.Metrics,
	})

	deliverer := opts.Deliverer
	if deliverer == nil {
		deliverer = export.DirDeliverer{Dir: cfg.Paths.OutputDir}
	}
	stack.Pipeline = export.NewPipeline(export.Options{
		Repository: stack.Repository,
		Archiver:   stack.Assembler,
		Deliverer:  deliverer,
		Logger:     logger,
		Metrics:    stack.Metrics,
	})
	return stack, nil
}

// Close releases resources opened by Build in reverse order.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
