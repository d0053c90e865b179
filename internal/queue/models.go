package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job record. The values are the
// strings persisted in the record store.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In_Progress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status. Matching is
// case-insensitive and tolerates a space in place of the underscore.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), " ", "_")
	for _, status := range allStatuses {
		if strings.EqualFold(normalized, string(status)) {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status is a final lifecycle state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one row of the record store: a single topic's lifecycle.
type Record struct {
	Topic           string
	Status          Status
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationSeconds float64
	QualityScore    *float64
	ErrorMessage    string
	OutputPath      string
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	if r.QualityScore != nil {
		q := *r.QualityScore
		cp.QualityScore = &q
	}
	return &cp
}

// Outcome names the terminal transition requested by Finalize.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) status() (Status, bool) {
	switch o {
	case OutcomeCompleted:
		return StatusCompleted, true
	case OutcomeFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// FinalizeResult carries the optional fields recorded on a terminal
// transition.
type FinalizeResult struct {
	ErrorMessage string
	QualityScore *float64
	OutputPath   string
}
