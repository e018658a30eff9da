package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"uttervault/internal/bootstrap"
	"uttervault/internal/config"
	"uttervault/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	closeLog   func() error
	loggerErr  error

	stack *bootstrap.Stack
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// commandLogger writes console logs to stderr so command output stays
// parseable, and mirrors every record into the log file.
func (c *commandContext) commandLogger(stderr io.Writer) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		opts := logging.OptionsFromConfig(cfg)
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			opts.Level = *c.logLevelFlag
		}
		opts.Output = stderr
		opts.Color = shouldColorize(stderr)
		c.logger, c.closeLog, c.loggerErr = logging.New(opts)
	})
	return c.logger, c.loggerErr
}

// exportStack builds the export stack once per invocation.
func (c *commandContext) exportStack(cmd *cobra.Command) (*bootstrap.Stack, error) {
	if c.stack != nil {
		return c.stack, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.commandLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	stack, err := bootstrap.Build(commandCtx(cmd), cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	c.stack = stack
	return stack, nil
}

func (c *commandContext) close() error {
	var errs []error
	if c.stack != nil {
		errs = append(errs, c.stack.Close())
		c.stack = nil
	}
	if c.closeLog != nil {
		errs = append(errs, c.closeLog())
		c.closeLog = nil
	}
	return errors.Join(errs...)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
