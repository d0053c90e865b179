package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeWorker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RecordStorePath) == "" {
		c.Paths.RecordStorePath = defaultRecordStorePath
	}
	if c.Paths.RecordStorePath, err = ExpandPath(c.Paths.RecordStorePath); err != nil {
		return fmt.Errorf("paths.record_store_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkspaceRootPath) == "" {
		c.Paths.WorkspaceRootPath = defaultWorkspaceRootPath
	}
	if c.Paths.WorkspaceRootPath, err = ExpandPath(c.Paths.WorkspaceRootPath); err != nil {
		return fmt.Errorf("paths.workspace_root_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if c.Store.RetryCount <= 0 {
		c.Store.RetryCount = defaultStoreRetryCount
	}
	if c.Store.RetryDelaySeconds <= 0 {
		c.Store.RetryDelaySeconds = defaultStoreRetryDelay
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.LockTimeoutSeconds <= 0 {
		c.Worker.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	if c.Worker.MaxIterations < 0 {
		c.Worker.MaxIterations = defaultMaxIterations
	}
	if c.Worker.IterationDelaySeconds <= 0 {
		c.Worker.IterationDelaySeconds = defaultIterationDelaySeconds
	}
	if c.Worker.ErrorRetrySeconds <= 0 {
		c.Worker.ErrorRetrySeconds = defaultErrorRetrySeconds
	}
	if c.Worker.StaleWorkspaceDays <= 0 {
		c.Worker.StaleWorkspaceDays = defaultStaleWorkspaceDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
