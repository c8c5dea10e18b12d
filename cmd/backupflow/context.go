package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"backupflow/internal/config"
	"backupflow/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once. Directories are not created
// here: a missing log directory must surface as a startup failure of `run`.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// logger builds the run logger; a failure falls back to a stderr-only
// console logger so commands still report what went wrong.
func (c *commandContext) logger(stderr io.Writer) (*slog.Logger, io.Closer) {
	logger, closer, err := logging.NewFromConfig(c.configValue())
	if err == nil {
		return logger, closer
	}
	fallback, ferr := logging.New(logging.Options{Level: "info", Format: "console", Writers: []io.Writer{stderr}})
	if ferr != nil {
		return logging.NewNop(), nopCloser{}
	}
	fallback.Warn("logger setup failed; using stderr", logging.Error(err))
	return fallback, nopCloser{}
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
