// Package invoker runs external programs as child processes and captures what
// they print. It is the only place in captchad that touches os/exec:
//
//   - invoker.go: Cmd, Outcome, Options and the Run/Invoke entry points.
//   - errors.go: launch and timeout errors with Is* helpers.
//   - buffer.go: size-capped capture buffers for stdout/stderr.
//   - events.go, eventpub_*.go: lifecycle events (spawn_start, spawn_exit, ...).
//   - metrics.go: Prometheus counters and histograms per program.
//   - sysproc_*.go: platform-specific termination (process groups on unix).
//
// A non-zero exit status is not an error: it is reported in Outcome.ExitCode.
// Run fails only when the program cannot be started, when the configured
// timeout expires, or when the caller's context is canceled. In the last two
// cases the child is sent SIGTERM and killed after Options.KillGrace.
package invoker
