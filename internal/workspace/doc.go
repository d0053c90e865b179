// Package workspace manages the per-job directories that make long-running
// jobs resumable. Each workspace carries a write-once manifest identifying
// the job and a state document that records phase progress; state saves are
// atomic so a crash at any point leaves a loadable document.
package workspace
