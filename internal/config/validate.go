package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.Export.Concurrency <= 0 {
		return errors.New("export.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "postgres":
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.driver is sqlite")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (expected postgres or sqlite)", c.Store.Driver)
	}
	if c.Store.BatchSize <= 0 {
		return errors.New("store.batch_size must be positive")
	}
	if c.Store.PageSize <= 0 {
		return errors.New("store.page_size must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "http":
		if c.Storage.BaseURL != "" && !strings.HasPrefix(c.Storage.BaseURL, "http://") && !strings.HasPrefix(c.Storage.BaseURL, "https://") {
			return fmt.Errorf("storage.base_url must be an http(s) URL, got %q", c.Storage.BaseURL)
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
	case "fs":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return errors.New("storage.dir must be set when storage.backend is fs")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected http, s3 or fs)", c.Storage.Backend)
	}
	return nil
}

// RequireStore reports whether the record repository has enough settings to connect.
func (c *Config) RequireStore() error {
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/uttervault/config.toml"
		}
		return fmt.Errorf("store.dsn is required for the postgres driver. Set DATABASE_URL or edit %s (create with 'uttervault config init')", defaultPath)
	}
	return nil
}

// RequireStorage reports whether the blob backend has enough settings to download.
func (c *Config) RequireStorage() error {
	if c.Storage.Backend == "http" && c.Storage.BaseURL == "" {
		return errors.New("storage.base_url is required for the http storage backend")
	}
	return nil
}
