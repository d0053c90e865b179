package phase

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request carries everything a phase collaborator may consult: the topic,
// the workspace directory it may write artifacts into, and the outputs of
// all previously completed phases keyed by phase identifier.
type Request struct {
	Topic        string
	WorkspaceDir string
	Prior        map[string]any
}

// Result is the successful outcome of one phase execution. Output is stored
// under the phase's key in the workspace state document; Metrics entries are
// merged into the state's metrics map (late phases report quality_score this
// way).
type Result struct {
	Output  any
	Metrics map[string]float64
}

// QualityScoreMetric is the metrics key the orchestrator consults when
// finalizing a completed job.
const QualityScoreMetric = "quality_score"

// Handler executes one pipeline phase. Implementations live outside the
// core; the orchestrator only sees this contract.
type Handler interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps each pipeline phase to its registered handler. The phase set
// is closed: registering an unknown phase is an error, and the orchestrator
// refuses to run with gaps.
type Registry struct {
	handlers map[Phase]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Phase]Handler, len(sequence))}
}

// Register binds a handler to a pipeline phase.
func (r *Registry) Register(p Phase, h Handler) error {
	if _, ok := indexByPhase[p]; !ok {
		return fmt.Errorf("register handler: unknown phase %q", p)
	}
	if h == nil {
		return fmt.Errorf("register handler: nil handler for phase %q", p)
	}
	if _, exists := r.handlers[p]; exists {
		return fmt.Errorf("register handler: phase %q already registered", p)
	}
	r.handlers[p] = h
	return nil
}

// Handler returns the handler registered for p.
func (r *Registry) Handler(p Phase) (Handler, bool) {
	h, ok := r.handlers[p]
	return h, ok
}

// Missing returns the pipeline phases without a registered handler.
func (r *Registry) Missing() []Phase {
	var missing []Phase
	for _, p := range sequence {
		if _, ok := r.handlers[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// ErrPhase marks failures raised by phase collaborators so the orchestrator
// can distinguish them from its own infrastructure errors.
var ErrPhase = errors.New("phase failure")

// Fail wraps err (or message alone) as a phase failure tagged with p.
func Fail(p Phase, message string, err error) error {
	detail := strings.TrimSpace(message)
	if detail == "" {
		detail = "failed"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %s: %w", ErrPhase, p, detail, err)
	}
	return fmt.Errorf("%w: %s: %s", ErrPhase, p, detail)
}
