package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.RecordStorePath == "" {
		return errors.New("paths.record_store_path must be set")
	}
	if c.Paths.WorkspaceRootPath == "" {
		return errors.New("paths.workspace_root_path must be set")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Store.Backend)
	}
	if c.Store.RetryCount < 1 {
		return errors.New("store.retry_count must be at least 1")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.LockTimeoutSeconds < 1 {
		return errors.New("worker.lock_timeout_seconds must be at least 1")
	}
	if c.Worker.MaxIterations < 0 {
		return errors.New("worker.max_iterations must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
