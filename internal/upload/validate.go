package upload

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"captchad/pkg/types"
)

// Rules are the optional checks applied to an upload before it reaches the
// predictor. The zero value accepts everything.
type Rules struct {
	// AllowedTypes lists sniffed MIME types that are accepted; empty allows any.
	AllowedTypes []string
	// EnforceDimensions rejects images whose decoded size is not Width x Height.
	EnforceDimensions bool
	Width, Height     int
}

// ValidationError rejects an upload with a client status code.
type ValidationError struct {
	Status  int
	Message string
	Detail  string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) StatusCode() int { return e.Status }

func (e *ValidationError) Category() string { return "invalid_upload" }

func (e *ValidationError) Details() any {
	if e.Detail == "" {
		return nil
	}
	return e.Detail
}

// IsValidation reports whether err is a rejected upload.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SniffType returns the MIME type detected from the content, ignoring what the
// client declared.
func SniffType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// Validate applies the rules to img.
func (r Rules) Validate(img types.UploadedImage) error {
	if len(img.Data) == 0 {
		return &ValidationError{Status: http.StatusBadRequest, Message: "Uploaded file is empty"}
	}
	if len(r.AllowedTypes) > 0 {
		sniffed := SniffType(img.Data)
		ok := false
		for _, t := range r.AllowedTypes {
			if strings.EqualFold(strings.TrimSpace(t), sniffed) {
				ok = true
				break
			}
		}
		if !ok {
			return &ValidationError{
				Status:  http.StatusUnsupportedMediaType,
				Message: "Unsupported image type",
				Detail:  fmt.Sprintf("detected %s, declared %q; allowed: %s", sniffed, img.ContentType, strings.Join(r.AllowedTypes, ", ")),
			}
		}
	}
	if r.EnforceDimensions && r.Width > 0 && r.Height > 0 {
		decoded, err := imaging.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return &ValidationError{Status: http.StatusBadRequest, Message: "Uploaded file is not a decodable image", Detail: err.Error()}
		}
		b := decoded.Bounds()
		if b.Dx() != r.Width || b.Dy() != r.Height {
			return &ValidationError{
				Status:  http.StatusBadRequest,
				Message: "Image dimensions not supported",
				Detail:  fmt.Sprintf("got %dx%d, model expects %dx%d", b.Dx(), b.Dy(), r.Width, r.Height),
			}
		}
	}
	return nil
}
