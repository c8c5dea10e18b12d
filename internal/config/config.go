package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations owned by the orchestrator.
type Paths struct {
	LogDir    string `toml:"log_dir"`
	StateFile string `toml:"state_file"`
	HistoryDB string `toml:"history_db"`
	LockFile  string `toml:"lock_file"`
}

// Engine describes how to invoke the external backup engine.
type Engine struct {
	Binary              string   `toml:"binary"`
	Repository          string   `toml:"repository"`
	SecretsFile         string   `toml:"secrets_file"`
	GlobalFlags         []string `toml:"global_flags"`
	SnapshotFlag        string   `toml:"snapshot_flag"`
	SnapshotFilesystems []string `toml:"snapshot_filesystems"`
	LockGraceSeconds    int      `toml:"lock_grace_seconds"`
}

// Source is one configured backup source. Identifier is either a filesystem
// path or an external-media identifier (serial number, volume label, disk name).
type Source struct {
	Identifier string   `toml:"identifier"`
	SubPaths   []string `toml:"sub_paths"`
}

// Backup contains configuration for the backup phase.
type Backup struct {
	Sources          []Source `toml:"sources"`
	IgnoreMissing    bool     `toml:"ignore_missing"`
	ExcludeFile      string   `toml:"exclude_file"`
	LocalExcludeFile string   `toml:"local_exclude_file"`
	ExtraArgs        string   `toml:"extra_args"`
}

// Retry contains the attempt/cooldown policy shared by both phases.
type Retry struct {
	Attempts        int `toml:"attempts"`
	CooldownMinutes int `toml:"cooldown_minutes"`
}

// Connectivity contains configuration for the connectivity gate.
type Connectivity struct {
	Attempts            int  `toml:"attempts"`
	BackoffSeconds      int  `toml:"backoff_seconds"`
	AvoidMetered        bool `toml:"avoid_metered"`
	ProbeTimeoutSeconds int  `toml:"probe_timeout_seconds"`
	ProbePort           int  `toml:"probe_port"`
}

// Maintenance contains retention, prune, and check scheduling.
type Maintenance struct {
	Enabled       bool   `toml:"enabled"`
	IntervalDays  int    `toml:"interval_days"`
	IntervalRuns  int    `toml:"interval_runs"`
	DeepCheck     bool   `toml:"deep_check"`
	DeepCheckDays int    `toml:"deep_check_days"`
	ForgetArgs    string `toml:"forget_args"`
	PruneArgs     string `toml:"prune_args"`
	CheckArgs     string `toml:"check_args"`
	DeepCheckArgs string `toml:"deep_check_args"`
	SelfUpdate    bool   `toml:"self_update"`
}

// Email contains report delivery settings.
type Email struct {
	Enabled      bool     `toml:"enabled"`
	Method       string   `toml:"method"`
	From         string   `toml:"from"`
	To           []string `toml:"to"`
	SendmailPath string   `toml:"sendmail_path"`
	SMTPHost     string   `toml:"smtp_host"`
	SMTPPort     int      `toml:"smtp_port"`
	SMTPUsername string   `toml:"smtp_username"`
	SMTPPassword string   `toml:"smtp_password"`
}

// Notifications contains report policy and the ntfy push channel.
type Notifications struct {
	SendOnSuccess  bool   `toml:"send_on_success"`
	SubjectPrefix  string `toml:"subject_prefix"`
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Email          Email  `toml:"email"`
}

// Hooks contains commands run after the whole invocation.
type Hooks struct {
	OnSuccess      string `toml:"on_success"`
	OnFailure      string `toml:"on_failure"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// History contains configuration for the rolling run history.
type History struct {
	Limit int `toml:"limit"`
}

// Metrics contains the optional node_exporter textfile target.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for backupflow.
//
// Configuration sections by subsystem:
//   - Paths: log directory, state file, history database, run lock
//   - Engine: backup engine binary, repository locator, secrets, snapshot mode
//   - Backup: sources, missing-source policy, exclude files, pass-through args
//   - Retry: attempts and cooldown shared by backup and maintenance
//   - Connectivity: gate attempts, backoff, metered avoidance, probe settings
//   - Maintenance: due-ness intervals, deep check cadence, step arguments
//   - Notifications: report policy, ntfy topic, email delivery
//   - Hooks: success/failure commands
//   - Logging: log format, level, and retention
//   - History: rolling run history size
//   - Metrics: Prometheus textfile export
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Backup        Backup        `toml:"backup"`
	Retry         Retry         `toml:"retry"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Maintenance   Maintenance   `toml:"maintenance"`
	Notifications Notifications `toml:"notifications"`
	Hooks         Hooks         `toml:"hooks"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("backupflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the parent directories of the state file and the
// history database. The log directory is never created here; preflight
// rejects a missing one.
func (c *Config) EnsureDirectories() error {
	for _, file := range []string{c.Paths.StateFile, c.Paths.HistoryDB} {
		if strings.TrimSpace(file) == "" {
			continue
		}
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EngineBinary returns the backup engine executable name or path.
func (c *Config) EngineBinary() string {
	if binary := strings.TrimSpace(c.Engine.Binary); binary != "" {
		return binary
	}
	return defaultEngineBinary
}

// RepositoryIsLocal reports whether the repository locator names an existing
// local filesystem path.
func (c *Config) RepositoryIsLocal() bool {
	locator := strings.TrimSpace(c.Engine.Repository)
	if locator == "" {
		return false
	}
	info, err := os.Stat(locator)
	return err == nil && info.IsDir()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.Notifications.Email.SMTPPassword != "" {
		redacted.Notifications.Email.SMTPPassword = "<redacted>"
	}
	data, err := toml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
