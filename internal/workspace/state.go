package workspace

import (
	"fmt"
	"time"

	"loom/internal/phase"
)

// StateFilename holds the resumable progress document inside a workspace.
const StateFilename = "state.json"

// PhaseError records one failed phase attempt. Entries accumulate across
// retries; nothing ever removes them.
type PhaseError struct {
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the resumable progress document for one job. CompletedPhases is
// always a gap-free prefix of the pipeline sequence, and CurrentPhase is the
// phase immediately after that prefix (or the terminal marker once the
// prefix covers the whole sequence).
type State struct {
	Topic           string             `json:"topic"`
	WorkspaceID     string             `json:"workspace_id"`
	CurrentPhase    phase.Phase        `json:"current_phase"`
	CompletedPhases []phase.Phase      `json:"completed_phases"`
	PhaseOutputs    map[string]any     `json:"phase_outputs"`
	Metrics         map[string]float64 `json:"metrics"`
	Errors          []PhaseError       `json:"errors"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewState returns the initial state for a fresh workspace.
func NewState(topic, workspaceID string) *State {
	now := time.Now().UTC()
	return &State{
		Topic:           topic,
		WorkspaceID:     workspaceID,
		CurrentPhase:    phase.First(),
		CompletedPhases: []phase.Phase{},
		PhaseOutputs:    make(map[string]any),
		Metrics:         make(map[string]float64),
		Errors:          []PhaseError{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkPhaseComplete appends p to the completed prefix, stores its output,
// merges its metrics, and advances CurrentPhase. Completing any phase other
// than the current one is rejected.
func (s *State) MarkPhaseComplete(p phase.Phase, result phase.Result) error {
	if p != s.CurrentPhase {
		return fmt.Errorf("complete %s out of order: current phase is %s", p, s.CurrentPhase)
	}
	next, ok := phase.Next(p)
	if !ok {
		return fmt.Errorf("complete unknown phase %q", p)
	}
	s.CompletedPhases = append(s.CompletedPhases, p)
	if s.PhaseOutputs == nil {
		s.PhaseOutputs = make(map[string]any)
	}
	s.PhaseOutputs[string(p)] = result.Output
	s.MergeMetrics(result.Metrics)
	s.CurrentPhase = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordError appends a failure entry for p without touching progress.
func (s *State) RecordError(p phase.Phase, message string) {
	s.Errors = append(s.Errors, PhaseError{
		Phase:     string(p),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// MergeMetrics folds the given metrics into the state, last writer wins.
func (s *State) MergeMetrics(metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64, len(metrics))
	}
	for key, value := range metrics {
		s.Metrics[key] = value
	}
	s.UpdatedAt = time.Now().UTC()
}

// Done reports whether every pipeline phase has completed.
func (s *State) Done() bool {
	return s.CurrentPhase == phase.Complete
}

// QualityScore returns the recorded quality metric, if any phase reported one.
func (s *State) QualityScore() (float64, bool) {
	score, ok := s.Metrics[phase.QualityScoreMetric]
	return score, ok
}

// validate checks the structural invariants a loaded state must satisfy:
// identity fields present, the completed list a gap-free prefix of the
// pipeline sequence, and the current phase positioned immediately after it.
func (s *State) validate() error {
	if s.Topic == "" || s.WorkspaceID == "" {
		return fmt.Errorf("state missing identity fields")
	}
	if !phase.Known(s.CurrentPhase) {
		return fmt.Errorf("unknown current phase %q", s.CurrentPhase)
	}
	sequence := phase.Sequence()
	if len(s.CompletedPhases) > len(sequence) {
		return fmt.Errorf("completed phase list longer than pipeline")
	}
	for i, p := range s.CompletedPhases {
		if p != sequence[i] {
			return fmt.Errorf("completed phases diverge from pipeline at position %d: %s", i, p)
		}
	}
	expected := phase.Complete
	if len(s.CompletedPhases) < len(sequence) {
		expected = sequence[len(s.CompletedPhases)]
	}
	if s.CurrentPhase != expected {
		return fmt.Errorf("current phase %s does not follow completed prefix (expected %s)", s.CurrentPhase, expected)
	}
	return nil
}
