package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"loom/internal/logging"
)

// ErrCorruptState marks a state document that cannot be parsed or that
// violates the progress invariants. Callers fail the owning job and leave
// the workspace on disk for inspection.
var ErrCorruptState = errors.New("corrupt workspace state")

// Manager creates and reopens job workspaces under a single root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// Workspace is an open handle on one job's directory.
type Workspace struct {
	Dir      string
	Manifest Manifest
}

// NewManager returns a manager rooted at root. A nil logger disables logging.
func NewManager(root string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{root: root, logger: logger.With(logging.String(logging.FieldComponent, "workspace"))}
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Create makes a fresh workspace for topic: a uniquely named directory, the
// write-once manifest, and the initial state document.
func (m *Manager) Create(topic string) (*Workspace, *State, error) {
	id := uuid.NewString()
	dirName := slugify(topic) + "-" + id[:8]
	dir := filepath.Join(m.root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create workspace directory: %w", err)
	}

	manifest := newManifest(id, topic)
	if err := writeManifest(dir, manifest); err != nil {
		return nil, nil, err
	}

	ws := &Workspace{Dir: dir, Manifest: manifest}
	state := NewState(topic, id)
	if err := ws.SaveState(state); err != nil {
		return nil, nil, err
	}

	m.logger.Info("workspace created",
		logging.String(logging.FieldTopic, topic),
		logging.String(logging.FieldWorkspace, dir),
	)
	return ws, state, nil
}

// Attach reopens an existing workspace directory, validating its manifest
// and state so a reclaimed job resumes from the recorded progress.
func (m *Manager) Attach(dir string) (*Workspace, *State, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	ws := &Workspace{Dir: dir, Manifest: manifest}
	state, err := ws.LoadState()
	if err != nil {
		return nil, nil, err
	}
	if state.WorkspaceID != manifest.WorkspaceID {
		return nil, nil, fmt.Errorf("%w: state workspace %s does not match manifest %s",
			ErrCorruptState, state.WorkspaceID, manifest.WorkspaceID)
	}
	return ws, state, nil
}

// StatePath returns the path of the workspace's state document.
func (w *Workspace) StatePath() string {
	return filepath.Join(w.Dir, StateFilename)
}

// SaveState persists the state document atomically: temp file in the same
// directory, fsync, rename. A crash mid-save leaves the previous document.
func (w *Workspace) SaveState(state *State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')

	tmp, err := os.CreateTemp(w.Dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpPath, w.StatePath()); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// LoadState reads and validates the state document. Parse failures and
// invariant violations surface as ErrCorruptState.
func (w *Workspace) LoadState() (*State, error) {
	payload, err := os.ReadFile(w.StatePath())
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := state.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &state, nil
}

// slugify reduces a topic to a filesystem-safe directory name fragment.
func slugify(topic string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	if slug == "" {
		slug = "topic"
	}
	return slug
}
