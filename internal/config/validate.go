package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.Repository == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("engine.repository is required. Set BACKUPFLOW_REPOSITORY env var or edit %s (create with 'backupflow config init')", defaultPath)
	}
	if c.Engine.LockGraceSeconds < 0 {
		return errors.New("engine.lock_grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateBackup() error {
	if len(c.Backup.Sources) == 0 {
		return errors.New("backup.sources must contain at least one source")
	}
	for i, source := range c.Backup.Sources {
		if source.Identifier == "" {
			return fmt.Errorf("backup.sources[%d].identifier must be set", i)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be >= 1")
	}
	if c.Retry.CooldownMinutes < 0 {
		return errors.New("retry.cooldown_minutes must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"connectivity.backoff_seconds":       c.Connectivity.BackoffSeconds,
		"connectivity.probe_timeout_seconds": c.Connectivity.ProbeTimeoutSeconds,
		"connectivity.probe_port":            c.Connectivity.ProbePort,
	})
}

func (c *Config) validateMaintenance() error {
	if !c.Maintenance.Enabled {
		return nil
	}
	values := map[string]int{
		"maintenance.interval_days": c.Maintenance.IntervalDays,
		"maintenance.interval_runs": c.Maintenance.IntervalRuns,
	}
	if c.Maintenance.DeepCheck {
		values["maintenance.deep_check_days"] = c.Maintenance.DeepCheckDays
	}
	return ensurePositiveMap(values)
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	email := c.Notifications.Email
	if !email.Enabled {
		return nil
	}
	switch email.Method {
	case "sendmail":
	case "smtp":
		if strings.TrimSpace(email.SMTPHost) == "" {
			return errors.New("notifications.email.smtp_host must be set when method is smtp")
		}
		if email.SMTPPort <= 0 {
			return errors.New("notifications.email.smtp_port must be positive")
		}
	default:
		return fmt.Errorf("notifications.email.method %q is not supported (use sendmail or smtp)", email.Method)
	}
	if strings.TrimSpace(email.From) == "" {
		return errors.New("notifications.email.from must be set when email is enabled")
	}
	if len(email.To) == 0 {
		return errors.New("notifications.email.to must list at least one recipient")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use auto, console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	if c.History.Limit < 1 {
		return errors.New("history.limit must be >= 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
