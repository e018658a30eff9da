package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeTranscode(); err != nil {
		return err
	}
	if c.Export.Concurrency <= 0 {
		c.Export.Concurrency = defaultExportConcurrency
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = ExpandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("UTTERVAULT_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "postgres", "postgresql", "pg", "supabase":
		c.Store.Driver = "postgres"
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("UTTERVAULT_DATABASE_URL"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Store.SQLitePath, err = ExpandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.BatchSize <= 0 {
		c.Store.BatchSize = defaultBatchSize
	}
	if c.Store.PageSize <= 0 {
		c.Store.PageSize = defaultPageSize
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultStorageBucket
	}
	c.Storage.APIKey = strings.TrimSpace(c.Storage.APIKey)
	if c.Storage.APIKey == "" {
		if value, ok := os.LookupEnv("UTTERVAULT_STORAGE_KEY"); ok {
			c.Storage.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("SUPABASE_SERVICE_ROLE_KEY"); ok {
			c.Storage.APIKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.TimeoutSeconds <= 0 {
		c.Storage.TimeoutSeconds = defaultStorageTimeout
	}
	if strings.TrimSpace(c.Storage.Dir) != "" {
		var err error
		if c.Storage.Dir, err = ExpandPath(c.Storage.Dir); err != nil {
			return fmt.Errorf("storage.dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeTranscode() error {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Transcode.WorkspaceDir) == "" {
		c.Transcode.WorkspaceDir = defaultWorkspaceDir
	}
	var err error
	if c.Transcode.WorkspaceDir, err = ExpandPath(c.Transcode.WorkspaceDir); err != nil {
		return fmt.Errorf("transcode.workspace_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
