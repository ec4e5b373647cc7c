// Package process runs an external executable and captures what it observably does.
//
// A Run is one ground-truth observation: the executable is spawned once,
// stdout and stderr are captured as a single text stream in emission order,
// and the exit status is recorded. There are no retries.
//
// # Errors
//
// A nonzero exit status is data, not an error: Run returns a Result and a nil
// error. Run returns an error only when the observation itself could not be
// made:
//   - *SpawnError: the executable is missing or could not be started
//   - context.DeadlineExceeded / context.Canceled (wrapped): the process was
//     killed because the context ended or Runner.Timeout elapsed
//   - ErrPTYUnsupported: CapturePTY on a platform without pseudo-terminals
//
// # Timeouts
//
// No timeout is imposed by default. A hung child stalls the caller until it
// exits; this is an accepted operational risk for a test harness. Set
// Runner.Timeout or pass a context with a deadline to bound it.
package process
