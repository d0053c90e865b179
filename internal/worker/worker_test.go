package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"loom/internal/phase"
	"loom/internal/queue"
	"loom/internal/testsupport"
	"loom/internal/worker"
	"loom/internal/workspace"
)

// phaseRecorder counts handler invocations per phase and lets individual
// phases be rigged to fail.
type phaseRecorder struct {
	mu       sync.Mutex
	calls    map[phase.Phase]int
	failures map[phase.Phase]error
}

func newPhaseRecorder() *phaseRecorder {
	return &phaseRecorder{
		calls:    make(map[phase.Phase]int),
		failures: make(map[phase.Phase]error),
	}
}

func (r *phaseRecorder) failOn(p phase.Phase, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[p] = err
}

func (r *phaseRecorder) count(p phase.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[p]
}

func (r *phaseRecorder) registry(t *testing.T) *phase.Registry {
	t.Helper()
	registry := phase.NewRegistry()
	for _, p := range phase.Sequence() {
		p := p
		err := registry.Register(p, phase.Func(func(ctx context.Context, req phase.Request) (phase.Result, error) {
			r.mu.Lock()
			r.calls[p]++
			failure := r.failures[p]
			r.mu.Unlock()
			if failure != nil {
				return phase.Result{}, failure
			}
			result := phase.Result{Output: map[string]any{"topic": req.Topic}}
			if p == phase.FinalOutput {
				result.Metrics = map[string]float64{phase.QualityScoreMetric: 0.8}
			}
			return result, nil
		}))
		if err != nil {
			t.Fatalf("Register(%s): %v", p, err)
		}
	}
	return registry
}

func newTestWorker(t *testing.T, store queue.Store, registry *phase.Registry, root string) *worker.Worker {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.WorkspaceRootPath = root
	w, err := worker.New(cfg, store, workspace.NewManager(root, nil), registry, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	w.ExitWhenIdle = true
	return w
}

func TestNewRejectsIncompleteRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := phase.NewRegistry()

	_, err := worker.New(cfg, store, workspace.NewManager(cfg.Paths.WorkspaceRootPath, nil), registry, nil)
	if err == nil {
		t.Fatal("expected error for registry with missing phases")
	}
}

func TestRunProcessesQueueToCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()
	w := newTestWorker(t, store, recorder.registry(t), cfg.Paths.WorkspaceRootPath)

	ctx := context.Background()
	testsupport.AddTopic(t, store, "carbon mineralization")
	testsupport.AddTopic(t, store, "enzyme design")

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, topic := range []string{"carbon mineralization", "enzyme design"} {
		record, err := store.Get(ctx, topic)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if record.Status != queue.StatusCompleted {
			t.Fatalf("%s: expected Completed, got %s", topic, record.Status)
		}
		if record.OutputPath == "" {
			t.Fatalf("%s: expected workspace path on record", topic)
		}
		if record.QualityScore == nil || *record.QualityScore != 0.8 {
			t.Fatalf("%s: unexpected quality score %#v", topic, record.QualityScore)
		}

		ws := &workspace.Workspace{Dir: record.OutputPath}
		state, err := ws.LoadState()
		if err != nil {
			t.Fatalf("%s: LoadState failed: %v", topic, err)
		}
		if !state.Done() {
			t.Fatalf("%s: expected done state, current phase %s", topic, state.CurrentPhase)
		}
	}

	for _, p := range phase.Sequence() {
		if recorder.count(p) != 2 {
			t.Fatalf("expected 2 executions of %s, got %d", p, recorder.count(p))
		}
	}
}

func TestRunFailsJobOnPhaseError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()
	recorder.failOn(phase.Compression, errors.New("upstream timeout"))
	w := newTestWorker(t, store, recorder.registry(t), cfg.Paths.WorkspaceRootPath)

	ctx := context.Background()
	testsupport.AddTopic(t, store, "doomed topic")

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	record, err := store.Get(ctx, "doomed topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != queue.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected error message on failed record")
	}

	ws := &workspace.Workspace{Dir: record.OutputPath}
	state, err := ws.LoadState()
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(state.CompletedPhases) != 2 {
		t.Fatalf("expected 2 completed phases before failure, got %d", len(state.CompletedPhases))
	}
	if len(state.Errors) != 1 || state.Errors[0].Phase != string(phase.Compression) {
		t.Fatalf("expected recorded phase error, got %#v", state.Errors)
	}
	if recorder.count(phase.GraphConstruction) != 0 {
		t.Fatal("phases after the failure must not run")
	}
}

// A reclaimed topic resumes from its saved state instead of rerunning
// completed phases.
func TestRunResumesReclaimedTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLockTimeout(0))
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()
	registry := recorder.registry(t)

	ctx := context.Background()
	testsupport.AddTopic(t, store, "interrupted topic")

	// Simulate a crashed worker: claim the topic, complete three phases,
	// record the workspace, then vanish without finalizing.
	if _, err := store.Claim(ctx, "interrupted topic"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	manager := workspace.NewManager(cfg.Paths.WorkspaceRootPath, nil)
	ws, state, err := manager.Create("interrupted topic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, p := range phase.Sequence()[:3] {
		if err := state.MarkPhaseComplete(p, phase.Result{Output: "done before crash"}); err != nil {
			t.Fatalf("MarkPhaseComplete failed: %v", err)
		}
	}
	if err := ws.SaveState(state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := store.AttachWorkspace(ctx, "interrupted topic", ws.Dir); err != nil {
		t.Fatalf("AttachWorkspace failed: %v", err)
	}

	// Lock timeout zero: the worker's stale release reclaims immediately.
	w, err := worker.New(cfg, store, manager, registry, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	w.ExitWhenIdle = true
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	record, err := store.Get(ctx, "interrupted topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != queue.StatusCompleted {
		t.Fatalf("expected Completed, got %s", record.Status)
	}
	if record.OutputPath != ws.Dir {
		t.Fatalf("expected original workspace %s, got %s", ws.Dir, record.OutputPath)
	}

	for i, p := range phase.Sequence() {
		want := 1
		if i < 3 {
			want = 0
		}
		if recorder.count(p) != want {
			t.Fatalf("expected %d executions of %s, got %d", want, p, recorder.count(p))
		}
	}
}

func TestRunHonorsIterationCap(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxIterations(1))
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()
	w, err := worker.New(cfg, store,
		workspace.NewManager(cfg.Paths.WorkspaceRootPath, nil), recorder.registry(t), nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	w.ExitWhenIdle = true

	ctx := context.Background()
	testsupport.AddTopic(t, store, "first topic")
	testsupport.AddTopic(t, store, "second topic")

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusCompleted] != 1 || stats[queue.StatusPending] != 1 {
		t.Fatalf("unexpected stats after capped run: %#v", stats)
	}
}

func TestRunFailsJobOnCorruptState(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLockTimeout(0))
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()

	ctx := context.Background()
	testsupport.AddTopic(t, store, "corrupt topic")

	if _, err := store.Claim(ctx, "corrupt topic"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	manager := workspace.NewManager(cfg.Paths.WorkspaceRootPath, nil)
	ws, _, err := manager.Create("corrupt topic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.AttachWorkspace(ctx, "corrupt topic", ws.Dir); err != nil {
		t.Fatalf("AttachWorkspace failed: %v", err)
	}
	if err := os.WriteFile(ws.StatePath(), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("corrupt state: %v", err)
	}

	w, err := worker.New(cfg, store, manager, recorder.registry(t), nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	w.ExitWhenIdle = true
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	record, err := store.Get(ctx, "corrupt topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != queue.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected parse failure in error message")
	}
	// The workspace stays on disk for inspection.
	if _, err := ws.LoadState(); err == nil {
		t.Fatal("expected state to remain corrupt on disk")
	}
}

func TestRunFailsJobOnWorkspaceError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	recorder := newPhaseRecorder()

	// A regular file where the workspace root should be makes every
	// directory creation under it fail.
	root := filepath.Join(t.TempDir(), "projects")
	if err := os.WriteFile(root, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("occupy workspace root: %v", err)
	}
	w := newTestWorker(t, store, recorder.registry(t), root)

	ctx := context.Background()
	testsupport.AddTopic(t, store, "unprovisionable topic")

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	record, err := store.Get(ctx, "unprovisionable topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != queue.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected the workspace error on the record")
	}
	if got := recorder.count(phase.Decomposition); got != 0 {
		t.Fatalf("no phase should run without a workspace, got %d calls", got)
	}
}
