package logging

// Canonical attribute keys shared across components so log output stays
// greppable regardless of which subsystem emitted the record.
const (
	FieldComponent = "component"
	FieldTopic     = "topic"
	FieldPhase     = "phase"
	FieldWorkspace = "workspace_id"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)
