package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loom/internal/phase"
)

// ManifestFilename is written exactly once at workspace creation and never
// rewritten; its presence marks a directory as a job workspace.
const ManifestFilename = "manifest.json"

// Manifest is the immutable identity record of a workspace.
type Manifest struct {
	WorkspaceID     string    `json:"workspace_id"`
	Topic           string    `json:"topic"`
	CreatedAt       time.Time `json:"created_at"`
	PipelineVersion string    `json:"pipeline_version"`
}

func newManifest(id, topic string) Manifest {
	return Manifest{
		WorkspaceID:     id,
		Topic:           topic,
		CreatedAt:       time.Now().UTC(),
		PipelineVersion: phase.PipelineVersion,
	}
}

// writeManifest creates the manifest with O_EXCL so a second writer in the
// same directory fails loudly instead of clobbering the identity record.
func writeManifest(dir string, manifest Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	payload = append(payload, '\n')

	file, err := os.OpenFile(filepath.Join(dir, ManifestFilename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (Manifest, error) {
	var manifest Manifest
	payload, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return manifest, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.WorkspaceID == "" || manifest.Topic == "" {
		return manifest, fmt.Errorf("manifest in %s missing identity fields", dir)
	}
	return manifest, nil
}
