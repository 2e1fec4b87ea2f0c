package invoker

import (
	"errors"
	"time"
)

// LaunchError reports that a program could not be started at all
// (missing executable, permission denied, ...).
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string { return "start " + e.Program + ": " + e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }

// IsLaunchError reports whether err indicates the program never started.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// timeoutError signals that a child outlived Options.Timeout and was terminated.
type timeoutError struct {
	program string
	after   time.Duration
}

func (e *timeoutError) Error() string {
	return e.program + " timed out after " + e.after.String()
}

// IsTimeout reports whether err indicates an invocation timeout.
func IsTimeout(err error) bool {
	var te *timeoutError
	return errors.As(err, &te)
}
