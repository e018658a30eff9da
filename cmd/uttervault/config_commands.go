package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"uttervault/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, overwrite)
			if err != nil {
				return err
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set store.dsn (or DATABASE_URL) and storage.base_url before exporting.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			for _, warning := range []error{cfg.RequireStore(), cfg.RequireStorage()} {
				if warning != nil {
					fmt.Fprintf(out, "Warning: %v\n", warning)
				}
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// initTarget resolves where config init writes and refuses to clobber an
// existing file unless overwrite is set.
func initTarget(path string, overwrite bool) (string, error) {
	var (
		target string
		err    error
	)
	if path = strings.TrimSpace(path); path == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(path)
	}
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if overwrite {
		return target, nil
	}
	switch _, err := os.Stat(target); {
	case err == nil:
		return "", fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("check config path: %w", err)
	}
	return target, nil
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the configuration after defaults, environment fallbacks and path expansion. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := toml.Marshal(maskSecrets(*cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

const maskedValue = "********"

// maskSecrets hides credentials that config show would otherwise print.
func maskSecrets(cfg config.Config) config.Config {
	if cfg.Store.DSN != "" {
		cfg.Store.DSN = maskedValue
	}
	if cfg.Storage.APIKey != "" {
		cfg.Storage.APIKey = maskedValue
	}
	if cfg.Paths.APIToken != "" {
		cfg.Paths.APIToken = maskedValue
	}
	return cfg
}
