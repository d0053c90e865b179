package phase

import "strings"

// Phase identifies one step of the fixed processing sequence. The string
// values are the identifiers persisted in workspace state documents.
type Phase string

const (
	Decomposition     Phase = "Phase_1_Decomposition"
	Research          Phase = "Phase_2_Research"
	Compression       Phase = "Phase_3_Compression"
	GraphConstruction Phase = "Phase_4_Graph_Construction"
	Hierarchy         Phase = "Phase_5_Hierarchy"
	Planning          Phase = "Phase_6_Planning"
	Generation        Phase = "Phase_7_Generation"
	FinalOutput       Phase = "Phase_8_Final_Output"

	// Complete is the terminal current_phase marker recorded once every
	// pipeline phase has finished.
	Complete Phase = "Complete"
)

// PipelineVersion is stamped into every workspace manifest so archived
// workspaces identify the phase sequence that produced them.
const PipelineVersion = "1.0"

var sequence = []Phase{
	Decomposition,
	Research,
	Compression,
	GraphConstruction,
	Hierarchy,
	Planning,
	Generation,
	FinalOutput,
}

var indexByPhase = func() map[Phase]int {
	m := make(map[Phase]int, len(sequence))
	for i, p := range sequence {
		m[p] = i
	}
	return m
}()

// Sequence returns the ordered pipeline phases.
func Sequence() []Phase {
	cp := make([]Phase, len(sequence))
	copy(cp, sequence)
	return cp
}

// First returns the initial pipeline phase.
func First() Phase {
	return sequence[0]
}

// Next returns the phase following p, or Complete when p is the last
// pipeline phase. The second return value is false when p is not a known
// pipeline phase.
func Next(p Phase) (Phase, bool) {
	idx, ok := indexByPhase[p]
	if !ok {
		return "", false
	}
	if idx == len(sequence)-1 {
		return Complete, true
	}
	return sequence[idx+1], true
}

// Index returns the zero-based position of p in the pipeline sequence.
func Index(p Phase) (int, bool) {
	idx, ok := indexByPhase[p]
	return idx, ok
}

// Known reports whether p is a pipeline phase or the terminal marker.
func Known(p Phase) bool {
	if p == Complete {
		return true
	}
	_, ok := indexByPhase[p]
	return ok
}

// Parse converts a persisted identifier into a Phase.
func Parse(value string) (Phase, bool) {
	trimmed := Phase(strings.TrimSpace(value))
	if !Known(trimmed) {
		return "", false
	}
	return trimmed, true
}

// Label returns a short human-readable name for display output.
func (p Phase) Label() string {
	switch p {
	case Decomposition:
		return "Decomposition"
	case Research:
		return "Research"
	case Compression:
		return "Compression"
	case GraphConstruction:
		return "Graph Construction"
	case Hierarchy:
		return "Hierarchy"
	case Planning:
		return "Planning"
	case Generation:
		return "Generation"
	case FinalOutput:
		return "Final Output"
	case Complete:
		return "Complete"
	default:
		return string(p)
	}
}
