// Package worker runs the claim-and-process loop that turns pending topics
// into finished jobs. A worker releases stale claims, claims one topic at a
// time, and executes the phase pipeline against that topic's workspace,
// saving progress after every phase so an interrupted job resumes where it
// stopped.
package worker
