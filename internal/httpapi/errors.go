package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"captchad/internal/inference"
	"captchad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// The optional interfaces below let service errors fill the rest of
// types.ErrorResponse.
type categorized interface{ Category() string }

type detailed interface{ Details() any }

type rawStreams interface {
	RawStreams() (stdout, stderr string)
}

// requestError is a failure detected by the HTTP layer itself.
type requestError struct {
	status   int
	msg      string
	category string
}

func (e *requestError) Error() string    { return e.msg }
func (e *requestError) StatusCode() int  { return e.status }
func (e *requestError) Category() string { return e.category }

var (
	errNoFile       = &requestError{status: http.StatusBadRequest, msg: "No file uploaded"}
	errFileTooLarge = &requestError{status: http.StatusRequestEntityTooLarge, msg: "Uploaded file is too large.", category: "invalid_upload"}
)

// errorResponse maps err onto the JSON error contract. Unknown errors become
// a 500 with category "internal".
func errorResponse(err error) types.ErrorResponse {
	resp := types.ErrorResponse{Error: err.Error(), Code: http.StatusInternalServerError, Category: "internal"}
	var he HTTPError
	if errors.As(err, &he) {
		resp.Error = he.Error()
		resp.Code = he.StatusCode()
		resp.Category = ""
	}
	var c categorized
	if errors.As(err, &c) {
		resp.Category = c.Category()
	}
	var d detailed
	if errors.As(err, &d) {
		resp.Details = d.Details()
	}
	var rs rawStreams
	if errors.As(err, &rs) {
		resp.RawOutput, resp.RawError = rs.RawStreams()
	}
	return resp
}

// writeError writes the JSON payload for err, once.
func writeError(w http.ResponseWriter, r *http.Request, err error) int {
	resp := errorResponse(err)
	if resp.Code == http.StatusTooManyRequests {
		IncrementBackpressure(resp.Category)
	}
	if requestLogLevel(r) >= LevelDebug {
		var ie *inference.Error
		if errors.As(err, &ie) {
			debugf(r, "script output", map[string]any{
				"op":        ie.Op,
				"exit_code": ie.Outcome.ExitCode,
				"stdout":    ie.Outcome.Stdout,
				"stderr":    ie.Outcome.Stderr,
			})
		}
	}
	writeJSON(w, r, resp.Code, resp)
	return resp.Code
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !claim(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
