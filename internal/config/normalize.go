package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	if err := c.normalizeBackup(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		c.Paths.StateFile = defaultStateFile
	}
	if c.Paths.StateFile, err = expandPath(c.Paths.StateFile); err != nil {
		return fmt.Errorf("paths.state_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" && c.Paths.LogDir != "" {
		c.Paths.LockFile = filepath.Join(c.Paths.LogDir, defaultStartupLockFileName)
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	c.Engine.Repository = strings.TrimSpace(c.Engine.Repository)
	if c.Engine.Repository == "" {
		for _, key := range []string{"BACKUPFLOW_REPOSITORY", "RESTIC_REPOSITORY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Engine.Repository = strings.TrimSpace(value)
				break
			}
		}
	}
	if strings.HasPrefix(c.Engine.Repository, "~") {
		expanded, err := expandPath(c.Engine.Repository)
		if err != nil {
			return fmt.Errorf("engine.repository: %w", err)
		}
		c.Engine.Repository = expanded
	}
	var err error
	if c.Engine.SecretsFile, err = expandPath(strings.TrimSpace(c.Engine.SecretsFile)); err != nil {
		return fmt.Errorf("engine.secrets_file: %w", err)
	}
	c.Engine.SnapshotFlag = strings.TrimSpace(c.Engine.SnapshotFlag)
	filesystems := make([]string, 0, len(c.Engine.SnapshotFilesystems))
	for _, fsType := range c.Engine.SnapshotFilesystems {
		fsType = strings.ToLower(strings.TrimSpace(fsType))
		if fsType != "" {
			filesystems = append(filesystems, fsType)
		}
	}
	c.Engine.SnapshotFilesystems = filesystems
	return nil
}

func (c *Config) normalizeBackup() error {
	var err error
	if c.Backup.ExcludeFile, err = expandPath(strings.TrimSpace(c.Backup.ExcludeFile)); err != nil {
		return fmt.Errorf("backup.exclude_file: %w", err)
	}
	if c.Backup.LocalExcludeFile, err = expandPath(strings.TrimSpace(c.Backup.LocalExcludeFile)); err != nil {
		return fmt.Errorf("backup.local_exclude_file: %w", err)
	}
	for i := range c.Backup.Sources {
		source := &c.Backup.Sources[i]
		source.Identifier = strings.TrimSpace(source.Identifier)
		if strings.HasPrefix(source.Identifier, "~") {
			if source.Identifier, err = expandPath(source.Identifier); err != nil {
				return fmt.Errorf("backup.sources[%d].identifier: %w", i, err)
			}
		}
		subPaths := make([]string, 0, len(source.SubPaths))
		for _, sub := range source.SubPaths {
			if sub = strings.TrimSpace(sub); sub != "" {
				subPaths = append(subPaths, sub)
			}
		}
		source.SubPaths = subPaths
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.SubjectPrefix = strings.TrimSpace(c.Notifications.SubjectPrefix)
	email := &c.Notifications.Email
	email.Method = strings.ToLower(strings.TrimSpace(email.Method))
	if email.Method == "" {
		email.Method = defaultEmailMethod
	}
	if strings.TrimSpace(email.SendmailPath) == "" {
		email.SendmailPath = defaultSendmailPath
	}
	recipients := make([]string, 0, len(email.To))
	for _, to := range email.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	email.To = recipients
	if email.SMTPPassword == "" {
		if value, ok := os.LookupEnv("BACKUPFLOW_SMTP_PASSWORD"); ok {
			email.SMTPPassword = value
		}
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
