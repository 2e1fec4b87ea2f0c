// Package relay is the request-scoped core of captchad: it validates an
// upload, parks it in a transient file, hands the path to a Predictor and
// guarantees the file is gone afterwards.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"captchad/internal/inference"
	"captchad/internal/upload"
	"captchad/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxWait = 30 * time.Second
)

// Config encapsulates the relay's tunables.
type Config struct {
	// MaxConcurrent bounds predictions in flight; zero means unlimited.
	MaxConcurrent int
	// MaxWait is how long a prediction may wait for a slot before 429.
	MaxWait time.Duration
	// Rules validate uploads before they are written to disk.
	Rules upload.Rules
	// Spec is served by ModelSpec.
	Spec types.ModelSpec
}

// Checker reports whether the external programs are in place.
type Checker interface {
	Check() error
}

// Relay implements the HTTP layer's Service.
type Relay struct {
	predictor inference.Predictor
	encoder   inference.EncoderSource
	store     *upload.Store
	rules     upload.Rules
	spec      types.ModelSpec
	slots     chan struct{} // nil when unlimited
	maxWait   time.Duration
	checker   Checker
	log       zerolog.Logger
}

// New constructs a Relay. If predictor also implements Checker it is used for readiness.
func New(cfg Config, predictor inference.Predictor, encoder inference.EncoderSource, store *upload.Store, log zerolog.Logger) *Relay {
	r := &Relay{
		predictor: predictor,
		encoder:   encoder,
		store:     store,
		rules:     cfg.Rules,
		spec:      cfg.Spec,
		maxWait:   cfg.MaxWait,
		log:       log,
	}
	if r.maxWait <= 0 {
		r.maxWait = defaultMaxWait
	}
	if cfg.MaxConcurrent > 0 {
		r.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	if c, ok := predictor.(Checker); ok {
		r.checker = c
	}
	return r
}

// Predict runs one upload through the predictor. The transient file is
// removed on every return path; a failed removal is logged only.
func (r *Relay) Predict(ctx context.Context, img types.UploadedImage) (types.PredictionResult, error) {
	if err := r.rules.Validate(img); err != nil {
		r.log.Warn().Err(err).Str("filename", img.Filename).Str("content_type", img.ContentType).Int("size", len(img.Data)).Msg("upload rejected")
		return types.PredictionResult{}, err
	}

	release, err := r.admit(ctx)
	if err != nil {
		return types.PredictionResult{}, err
	}
	defer release()

	tf, err := r.store.Save(img)
	if err != nil {
		r.log.Error().Err(err).Str("dir", r.store.Dir()).Str("filename", img.Filename).Msg("failed to write transient file")
		return types.PredictionResult{}, &ioError{err: err}
	}
	defer r.discard(tf)
	r.log.Debug().Str("path", tf.Path).Int64("size", tf.Size).Str("content_type", img.ContentType).Msg("saved transient file")

	return r.predictor.Predict(ctx, tf.Path)
}

// EncoderMetadata fetches the label-encoder metadata. Nothing is cached.
func (r *Relay) EncoderMetadata(ctx context.Context) (json.RawMessage, error) {
	return r.encoder.EncoderMetadata(ctx)
}

// ModelSpec returns the model's published input constraints.
func (r *Relay) ModelSpec() types.ModelSpec { return r.spec }

// Ready reports whether the external scripts are present.
func (r *Relay) Ready() bool {
	if r.checker == nil {
		return true
	}
	if err := r.checker.Check(); err != nil {
		r.log.Debug().Err(err).Msg("not ready")
		return false
	}
	return true
}

func (r *Relay) discard(tf *upload.TransientFile) {
	if err := tf.Remove(); err != nil {
		r.log.Error().Err(err).Str("path", tf.Path).Msg("failed to delete transient file")
		return
	}
	r.log.Debug().Str("path", tf.Path).Msg("deleted transient file")
}

// ioError wraps a failure to persist the upload.
type ioError struct{ err error }

func (e *ioError) Error() string { return "Failed to process image file on server." }

func (e *ioError) Unwrap() error { return e.err }

func (e *ioError) StatusCode() int { return http.StatusInternalServerError }

func (e *ioError) Category() string { return "io_error" }

func (e *ioError) Details() any { return e.err.Error() }
