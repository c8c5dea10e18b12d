package config

import "time"

const (
	defaultConfigPath             = "~/.config/backupflow/config.toml"
	defaultLogDir                 = "~/.local/share/backupflow/logs"
	defaultStateFile              = "~/.local/share/backupflow/state.toml"
	defaultHistoryDB              = "~/.local/share/backupflow/history.db"
	defaultSecretsFile            = "~/.config/backupflow/secrets.env"
	defaultExcludeFile            = "~/.config/backupflow/exclude.txt"
	defaultLocalExcludeFile       = "~/.config/backupflow/local-exclude.txt"
	defaultEngineBinary           = "restic"
	defaultSnapshotFlag           = "--use-fs-snapshot"
	defaultLockGraceSeconds       = 60
	defaultRetryAttempts          = 4
	defaultRetryCooldownMinutes   = 15
	defaultConnectivityAttempts   = 10
	defaultConnectivityBackoff    = 30
	defaultProbeTimeoutSeconds    = 5
	defaultProbePort              = 443
	defaultMaintenanceDays        = 30
	defaultMaintenanceRuns        = 7
	defaultDeepCheckDays          = 90
	defaultForgetArgs             = "--keep-daily 30 --keep-weekly 52 --keep-monthly 24 --keep-yearly 10"
	defaultPruneArgs              = "--max-unused 1%"
	defaultDeepCheckArgs          = "--read-data"
	defaultSubjectPrefix          = "backupflow"
	defaultNotifyRequestTimeout   = 10
	defaultEmailMethod            = "sendmail"
	defaultSendmailPath           = "/usr/sbin/sendmail"
	defaultSMTPPort               = 587
	defaultHookTimeoutSeconds     = 300
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultHistoryLimit           = 100
	defaultBackupExtraArgs        = "--exclude-if-present .nobackup"
	defaultStartupLockFileName    = "backupflow.lock"
	defaultMainLogFileName        = "backupflow.log"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			StateFile: defaultStateFile,
			HistoryDB: defaultHistoryDB,
		},
		Engine: Engine{
			Binary:           defaultEngineBinary,
			SecretsFile:      defaultSecretsFile,
			SnapshotFlag:     defaultSnapshotFlag,
			LockGraceSeconds: defaultLockGraceSeconds,
		},
		Backup: Backup{
			ExcludeFile:      defaultExcludeFile,
			LocalExcludeFile: defaultLocalExcludeFile,
			ExtraArgs:        defaultBackupExtraArgs,
		},
		Retry: Retry{
			Attempts:        defaultRetryAttempts,
			CooldownMinutes: defaultRetryCooldownMinutes,
		},
		Connectivity: Connectivity{
			Attempts:            defaultConnectivityAttempts,
			BackoffSeconds:      defaultConnectivityBackoff,
			AvoidMetered:        true,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			ProbePort:           defaultProbePort,
		},
		Maintenance: Maintenance{
			Enabled:       true,
			IntervalDays:  defaultMaintenanceDays,
			IntervalRuns:  defaultMaintenanceRuns,
			DeepCheck:     true,
			DeepCheckDays: defaultDeepCheckDays,
			ForgetArgs:    defaultForgetArgs,
			PruneArgs:     defaultPruneArgs,
			DeepCheckArgs: defaultDeepCheckArgs,
			SelfUpdate:    true,
		},
		Notifications: Notifications{
			SendOnSuccess:  true,
			SubjectPrefix:  defaultSubjectPrefix,
			RequestTimeout: defaultNotifyRequestTimeout,
			Email: Email{
				Method:       defaultEmailMethod,
				SendmailPath: defaultSendmailPath,
				SMTPPort:     defaultSMTPPort,
			},
		},
		Hooks: Hooks{
			TimeoutSeconds: defaultHookTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			Limit: defaultHistoryLimit,
		},
	}
}

// RetryCooldown returns the pause between failed attempts of a phase.
func (c *Config) RetryCooldown() time.Duration {
	return time.Duration(c.Retry.CooldownMinutes) * time.Minute
}

// ConnectivityBackoff returns the wait between connectivity gate checks.
func (c *Config) ConnectivityBackoff() time.Duration {
	return time.Duration(c.Connectivity.BackoffSeconds) * time.Second
}

// ProbeTimeout returns the timeout applied to a single reachability probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Connectivity.ProbeTimeoutSeconds) * time.Second
}

// LockGrace returns the settle time after clearing a stale repository lock.
func (c *Config) LockGrace() time.Duration {
	return time.Duration(c.Engine.LockGraceSeconds) * time.Second
}

// HookTimeout returns the maximum runtime of a success/failure hook.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.Hooks.TimeoutSeconds) * time.Second
}

// MainLogFileName is the name of the long-lived orchestrator log inside log_dir.
func MainLogFileName() string { return defaultMainLogFileName }

