package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/phase"
	"loom/internal/queue"
	"loom/internal/workspace"
)

// Worker claims pending topics from the record store and drives each through
// the phase pipeline. Multiple workers may run against the same store; the
// claim protocol keeps them from colliding.
type Worker struct {
	cfg        *config.Config
	store      queue.Store
	workspaces *workspace.Manager
	registry   *phase.Registry
	logger     *slog.Logger

	// ExitWhenIdle makes Run return once no pending work remains instead of
	// polling for new topics.
	ExitWhenIdle bool
}

// New assembles a worker. The registry must cover every pipeline phase.
func New(cfg *config.Config, store queue.Store, workspaces *workspace.Manager, registry *phase.Registry, logger *slog.Logger) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker requires configuration")
	}
	if store == nil {
		return nil, errors.New("worker requires a record store")
	}
	if workspaces == nil {
		return nil, errors.New("worker requires a workspace manager")
	}
	if registry == nil {
		return nil, errors.New("worker requires a phase registry")
	}
	if missing := registry.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("phase registry incomplete: missing %v", missing)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		cfg:        cfg,
		store:      store,
		workspaces: workspaces,
		registry:   registry,
		logger:     logger.With(logging.String(logging.FieldComponent, "worker")),
	}, nil
}

// Run executes the claim loop until ctx is cancelled, the configured
// iteration cap is reached, or (when ExitWhenIdle is set) the queue drains.
// Each iteration releases stale claims, claims at most one topic, and
// processes it to completion or failure.
func (w *Worker) Run(ctx context.Context) error {
	lockTimeout := time.Duration(w.cfg.Worker.LockTimeoutSeconds) * time.Second
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.cfg.Worker.MaxIterations > 0 && processed >= w.cfg.Worker.MaxIterations {
			w.logger.Info("iteration cap reached",
				logging.Int("processed", processed),
				logging.String(logging.FieldEventType, "worker_done"),
			)
			return nil
		}

		released, err := w.store.ReleaseStale(ctx, lockTimeout)
		if err != nil {
			w.logger.Warn("stale claim release failed; stuck records may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stale_release_failed"),
				logging.String(logging.FieldErrorHint, "check record store access"),
			)
		} else if released > 0 {
			w.logger.Info("released stale claims",
				logging.Int64("count", released),
				logging.String(logging.FieldEventType, "stale_release"),
			)
		}

		record, err := w.claimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim next topic",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check record store access"),
			)
			if !w.wait(ctx, time.Duration(w.cfg.Worker.ErrorRetrySeconds)*time.Second) {
				return ctx.Err()
			}
			continue
		}
		if record == nil {
			if w.ExitWhenIdle {
				w.logger.Info("queue drained",
					logging.Int("processed", processed),
					logging.String(logging.FieldEventType, "worker_done"),
				)
				return nil
			}
			if !w.wait(ctx, time.Duration(w.cfg.Worker.IterationDelaySeconds)*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if err := w.processRecord(ctx, record); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
		}
		processed++
	}
}

// claimNext claims the first pending topic it can win. Claim conflicts mean
// another worker got there first; the next candidate is tried instead.
func (w *Worker) claimNext(ctx context.Context) (*queue.Record, error) {
	pending, err := w.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	for _, candidate := range pending {
		record, err := w.store.Claim(ctx, candidate.Topic)
		if err != nil {
			if errors.Is(err, queue.ErrClaimConflict) || errors.Is(err, queue.ErrNotFound) {
				w.logger.Debug("lost claim race",
					logging.String(logging.FieldTopic, candidate.Topic),
					logging.String(logging.FieldEventType, "claim_conflict"),
				)
				continue
			}
			return nil, err
		}
		return record, nil
	}
	return nil, nil
}

// wait sleeps for d unless the context ends first. Returns false on
// cancellation.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
