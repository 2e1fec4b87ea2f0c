package types

// PredictionResult is returned by POST /predict.
type PredictionResult struct {
	// Text decoded from the CAPTCHA image.
	// example: abc23
	Text string `json:"text" example:"abc23"`
	// Mean per-character confidence in [0,1].
	// example: 0.97
	Confidence float64 `json:"confidence" example:"0.97"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: No file uploaded
	Error string `json:"error" example:"No file uploaded"`
	// Optional details: captured script output, a parse error, or a structured value
	// the external program printed on stderr.
	Details any `json:"details,omitempty"`
	// Error classification (script_missing, launch_failure, execution_failure, format_error, ...).
	// example: format_error
	Category string `json:"category,omitempty" example:"format_error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Raw stdout of the external program, set on format errors.
	RawOutput string `json:"raw_output,omitempty"`
	// Raw stderr of the external program, set on format errors.
	RawError string `json:"raw_error,omitempty"`
}

// ModelSpec describes the input constraints of the recognition model, served by GET /model-spec.
type ModelSpec struct {
	// Expected image width in pixels.
	// example: 200
	ImageWidth int `json:"image_width" example:"200"`
	// Expected image height in pixels.
	// example: 50
	ImageHeight int `json:"image_height" example:"50"`
	// Number of characters in a CAPTCHA.
	// example: 5
	TextLength int `json:"text_length" example:"5"`
	// Characters the model was trained on.
	// example: 2345678bcdefgmnpwxy
	Charset string `json:"charset" example:"2345678bcdefgmnpwxy"`
	// MIME types the front end accepts.
	// example: ["image/png","image/jpeg"]
	AcceptedTypes []string `json:"accepted_types" example:"[\"image/png\",\"image/jpeg\"]"`
}
