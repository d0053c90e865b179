package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"loom/internal/logging"
	"loom/internal/phase"
	"loom/internal/queue"
	"loom/internal/workspace"
)

// processRecord drives one claimed topic from its recorded progress to a
// terminal status. The record is already In_Progress; every exit path either
// finalizes it or deliberately leaves the claim for stale recovery.
func (w *Worker) processRecord(ctx context.Context, record *queue.Record) error {
	logger := w.logger.With(logging.String(logging.FieldTopic, record.Topic))
	started := time.Now()

	ws, state, err := w.prepareWorkspace(ctx, record, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Info("interrupted; leaving claim for resume",
				logging.String(logging.FieldEventType, "job_interrupted"),
			)
			return err
		}
		// Workspace failures, corrupt state included, are fatal to this
		// job only; the record carries the cause instead of sitting
		// In_Progress on a host that cannot provision workspaces.
		logger.Error("workspace preparation failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_prepare_failed"),
			logging.String(logging.FieldErrorHint, "check workspace_root_path access"),
		)
		w.finalize(ctx, logger, record.Topic, queue.OutcomeFailed, queue.FinalizeResult{
			ErrorMessage: err.Error(),
		})
		return err
	}

	logger = logger.With(logging.String(logging.FieldWorkspace, ws.Dir))
	if len(state.CompletedPhases) > 0 {
		logger.Info("resuming from recorded progress",
			logging.String(logging.FieldPhase, string(state.CurrentPhase)),
			logging.Int("completed", len(state.CompletedPhases)),
			logging.String(logging.FieldEventType, "job_resume"),
		)
	} else {
		logger.Info("starting job",
			logging.String(logging.FieldEventType, "job_start"),
		)
	}

	for !state.Done() {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-job: progress is saved, the claim stays, and a
			// later worker resumes from the same phase.
			logger.Info("interrupted; leaving claim for resume",
				logging.String(logging.FieldPhase, string(state.CurrentPhase)),
				logging.String(logging.FieldEventType, "job_interrupted"),
			)
			return err
		}
		if err := w.executePhase(ctx, ws, state, logger); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("interrupted; leaving claim for resume",
					logging.String(logging.FieldPhase, string(state.CurrentPhase)),
					logging.String(logging.FieldEventType, "job_interrupted"),
				)
				return err
			}
			w.finalize(ctx, logger, record.Topic, queue.OutcomeFailed, queue.FinalizeResult{
				ErrorMessage: err.Error(),
				OutputPath:   ws.Dir,
			})
			return err
		}
	}

	result := queue.FinalizeResult{OutputPath: ws.Dir}
	if score, ok := state.QualityScore(); ok {
		result.QualityScore = &score
	}
	w.finalize(ctx, logger, record.Topic, queue.OutcomeCompleted, result)
	logger.Info("job completed",
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	return nil
}

// prepareWorkspace reopens the workspace recorded on the record, or creates
// a fresh one and attaches it. A recorded directory that has vanished gets
// replaced; a corrupt state document fails the job.
func (w *Worker) prepareWorkspace(ctx context.Context, record *queue.Record, logger *slog.Logger) (*workspace.Workspace, *workspace.State, error) {
	if record.OutputPath != "" {
		ws, state, err := w.workspaces.Attach(record.OutputPath)
		if err == nil {
			return ws, state, nil
		}
		if errors.Is(err, workspace.ErrCorruptState) {
			return nil, nil, fmt.Errorf("resume %s: %w", record.OutputPath, err)
		}
		if _, statErr := os.Stat(record.OutputPath); statErr == nil {
			return nil, nil, fmt.Errorf("reopen workspace %s: %w", record.OutputPath, err)
		}
		logger.Warn("recorded workspace missing; creating a fresh one",
			logging.String(logging.FieldWorkspace, record.OutputPath),
			logging.String(logging.FieldEventType, "workspace_missing"),
		)
	}

	ws, state, err := w.workspaces.Create(record.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := w.store.AttachWorkspace(ctx, record.Topic, ws.Dir); err != nil {
		return nil, nil, fmt.Errorf("record workspace on claim: %w", err)
	}
	return ws, state, nil
}

// executePhase runs the current phase and persists the advanced state before
// returning. Failed attempts are recorded in the state document and saved
// even though the job is about to fail.
func (w *Worker) executePhase(ctx context.Context, ws *workspace.Workspace, state *workspace.State, logger *slog.Logger) error {
	current := state.CurrentPhase
	handler, ok := w.registry.Handler(current)
	if !ok {
		return fmt.Errorf("no handler for phase %s", current)
	}

	logger.Info("phase started",
		logging.String(logging.FieldPhase, string(current)),
		logging.String(logging.FieldEventType, "phase_start"),
	)
	phaseStarted := time.Now()

	result, err := handler.Execute(ctx, phase.Request{
		Topic:        state.Topic,
		WorkspaceDir: ws.Dir,
		Prior:        state.PhaseOutputs,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		state.RecordError(current, err.Error())
		if saveErr := ws.SaveState(state); saveErr != nil {
			logger.Error("failed to persist error entry",
				logging.Error(saveErr),
				logging.String(logging.FieldPhase, string(current)),
				logging.String(logging.FieldEventType, "state_save_failed"),
			)
		}
		logger.Error("phase failed",
			logging.Error(err),
			logging.String(logging.FieldPhase, string(current)),
			logging.Duration("elapsed", time.Since(phaseStarted)),
			logging.String(logging.FieldEventType, "phase_failed"),
		)
		return fmt.Errorf("phase %s: %w", current, err)
	}

	if err := state.MarkPhaseComplete(current, result); err != nil {
		return err
	}
	if err := ws.SaveState(state); err != nil {
		return fmt.Errorf("persist progress after %s: %w", current, err)
	}

	logger.Info("phase completed",
		logging.String(logging.FieldPhase, string(current)),
		logging.Duration("elapsed", time.Since(phaseStarted)),
		logging.String(logging.FieldEventType, "phase_complete"),
	)
	return nil
}

// finalize commits the terminal status. An invalid transition means an
// operator reset or removed the record mid-run; that is logged, not fatal.
func (w *Worker) finalize(ctx context.Context, logger *slog.Logger, topic string, outcome queue.Outcome, result queue.FinalizeResult) {
	if _, err := w.store.Finalize(ctx, topic, outcome, result); err != nil {
		logger.Warn("finalize failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "finalize_failed"),
			logging.String(logging.FieldImpact, "record status may not reflect job outcome"),
		)
	}
}
