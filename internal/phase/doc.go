// Package phase defines the fixed eight-phase pipeline and the contract the
// orchestrator uses to invoke phase collaborators.
//
// The phase set is closed and ordered: Decomposition through FinalOutput,
// with Complete as the terminal marker a finished workspace records. Phase
// implementations are external to the core; they satisfy Handler and are
// bound through a Registry so dispatch stays a table lookup rather than
// dynamic discovery.
package phase
