package inference

import (
	"errors"
	"net/http"

	"captchad/internal/invoker"
)

// Kind classifies why an inference call failed.
type Kind int

const (
	KindScriptMissing Kind = iota + 1 // configured script is not on disk
	KindLaunch                        // interpreter/script could not be started
	KindExit                          // program exited non-zero
	KindFormat                        // output is not the expected structure
	KindTimeout                       // program outlived the invoke timeout
)

func (k Kind) String() string {
	switch k {
	case KindScriptMissing:
		return "script_missing"
	case KindLaunch:
		return "launch_failure"
	case KindExit:
		return "execution_failure"
	case KindFormat:
		return "format_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Operations an Error can belong to.
const (
	OpPredict = "predict"
	OpEncoder = "encoder"
)

// Error is returned for every failed predictor or encoder call. Error() is the
// client-facing message; the underlying cause is available through Unwrap.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Detail  any
	Outcome invoker.Outcome
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps every inference failure to 500: they are all server-side.
func (e *Error) StatusCode() int { return http.StatusInternalServerError }

// Category returns the machine-readable classification.
func (e *Error) Category() string { return e.Kind.String() }

// Details returns captured output or the parse error, when available.
func (e *Error) Details() any { return e.Detail }

// RawStreams exposes the captured stdout/stderr for format errors only; other
// kinds already carry what matters in Details.
func (e *Error) RawStreams() (stdout, stderr string) {
	if e.Kind != KindFormat {
		return "", ""
	}
	return e.Outcome.Stdout, e.Outcome.Stderr
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsScriptMissing reports whether err indicates a missing script.
func IsScriptMissing(err error) bool { return KindOf(err) == KindScriptMissing }

// IsLaunch reports whether err indicates the program could not be started.
func IsLaunch(err error) bool { return KindOf(err) == KindLaunch }

// IsExecution reports whether err indicates a non-zero exit.
func IsExecution(err error) bool { return KindOf(err) == KindExit }

// IsFormat reports whether err indicates unparseable or non-conforming output.
func IsFormat(err error) bool { return KindOf(err) == KindFormat }

// IsTimeout reports whether err indicates the program timed out.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// messages holds the client-facing text per operation and kind.
var messages = map[string]map[Kind]string{
	OpPredict: {
		KindScriptMissing: "Prediction script missing on server.",
		KindLaunch:        "Failed to run prediction script",
		KindExit:          "Prediction script execution failed.",
		KindFormat:        "Invalid prediction script output format.",
		KindTimeout:       "Prediction script timed out.",
	},
	OpEncoder: {
		KindScriptMissing: "Encoder script missing on server.",
		KindLaunch:        "Failed to run encoder script",
		KindExit:          "Encoder script execution failed.",
		KindFormat:        "Failed to parse encoder script output.",
		KindTimeout:       "Encoder script timed out.",
	},
}

// msgUnexpectedShape is used when the predictor printed valid JSON of the wrong shape.
const msgUnexpectedShape = "Unexpected response format from prediction script."

func newError(op string, kind Kind, detail any, out invoker.Outcome, cause error) *Error {
	return &Error{Op: op, Kind: kind, Message: messages[op][kind], Detail: detail, Outcome: out, Err: cause}
}
