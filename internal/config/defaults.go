package config

const (
	defaultRecordStorePath       = "~/.local/share/loom/queue/topics.csv"
	defaultWorkspaceRootPath     = "~/.local/share/loom/projects"
	defaultLogDir                = "~/.local/share/loom/logs"
	defaultStoreBackend          = BackendFile
	defaultStoreRetryCount       = 3
	defaultStoreRetryDelay       = 1
	defaultLockTimeoutSeconds    = 3600
	defaultMaxIterations         = 0
	defaultIterationDelaySeconds = 5
	defaultErrorRetrySeconds     = 10
	defaultStaleWorkspaceDays    = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordStorePath:   defaultRecordStorePath,
			WorkspaceRootPath: defaultWorkspaceRootPath,
			LogDir:            defaultLogDir,
		},
		Store: Store{
			Backend:           defaultStoreBackend,
			RetryCount:        defaultStoreRetryCount,
			RetryDelaySeconds: defaultStoreRetryDelay,
		},
		Worker: Worker{
			LockTimeoutSeconds:    defaultLockTimeoutSeconds,
			MaxIterations:         defaultMaxIterations,
			IterationDelaySeconds: defaultIterationDelaySeconds,
			ErrorRetrySeconds:     defaultErrorRetrySeconds,
			StaleWorkspaceDays:    defaultStaleWorkspaceDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
