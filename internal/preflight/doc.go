// Package preflight provides readiness checks for the filesystem paths the
// worker depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before starting the worker loop. If any
//     check fails, the worker refuses to start rather than claim topics it
//     cannot finish.
//   - The CLI "loom status" command displays the same results so operators
//     can diagnose a worker that will not start.
package preflight
