package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"captchad/pkg/types"
)

// outputError describes why predictor output was rejected. shape is false when
// the output is not JSON at all and true when it is JSON of the wrong form.
type outputError struct {
	shape bool
	err   error
}

func (e *outputError) Error() string { return e.err.Error() }

func (e *outputError) Unwrap() error { return e.err }

func malformed(err error) error { return &outputError{err: err} }

func badShape(format string, args ...any) error {
	return &outputError{shape: true, err: fmt.Errorf(format, args...)}
}

// ParsePrediction parses the trimmed stdout of the prediction script. It must be
// a single JSON object with a string "text" and a numeric "confidence" in [0,1].
func ParsePrediction(stdout string) (types.PredictionResult, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return types.PredictionResult{}, malformed(errors.New("empty output"))
	}
	if !json.Valid([]byte(trimmed)) {
		var v any
		err := json.Unmarshal([]byte(trimmed), &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return types.PredictionResult{}, malformed(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return types.PredictionResult{}, badShape("expected a JSON object")
	}

	textRaw, ok := fields["text"]
	if !ok || isNull(textRaw) {
		return types.PredictionResult{}, badShape("missing \"text\" field")
	}
	var text string
	if err := json.Unmarshal(textRaw, &text); err != nil {
		return types.PredictionResult{}, badShape("\"text\" is not a string")
	}

	confRaw, ok := fields["confidence"]
	if !ok || isNull(confRaw) {
		return types.PredictionResult{}, badShape("missing \"confidence\" field")
	}
	var conf float64
	if err := json.Unmarshal(confRaw, &conf); err != nil {
		return types.PredictionResult{}, badShape("\"confidence\" is not a number")
	}
	if conf < 0 || conf > 1 {
		return types.PredictionResult{}, badShape("\"confidence\" %v out of range [0,1]", conf)
	}
	return types.PredictionResult{Text: text, Confidence: conf}, nil
}

// ParseEncoderMetadata validates the encoder script's stdout as JSON and returns it verbatim.
func ParseEncoderMetadata(stdout string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, malformed(errors.New("empty output"))
	}
	if !json.Valid([]byte(trimmed)) {
		var v any
		err := json.Unmarshal([]byte(trimmed), &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, malformed(err)
	}
	return json.RawMessage(trimmed), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
