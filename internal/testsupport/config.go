package testsupport

import (
	"path/filepath"
	"testing"

	"loom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecordStorePath = filepath.Join(base, "queue", "topics.csv")
	cfgVal.Paths.WorkspaceRootPath = filepath.Join(base, "projects")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.RetryCount = 3
	cfgVal.Store.RetryDelaySeconds = 0
	cfgVal.Worker.IterationDelaySeconds = 0
	cfgVal.Worker.ErrorRetrySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackend selects the record store backend on the test config.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithLockTimeout overrides the stale-claim timeout on the test config.
func WithLockTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.LockTimeoutSeconds = seconds
	}
}

// WithMaxIterations bounds the worker loop on the test config.
func WithMaxIterations(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.MaxIterations = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceRootPath)
}
