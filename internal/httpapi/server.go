package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"captchad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Predict(ctx context.Context, img types.UploadedImage) (types.PredictionResult, error)
	EncoderMetadata(ctx context.Context) (json.RawMessage, error)
	ModelSpec() types.ModelSpec
	Ready() bool
}

const (
	// uploadField is the multipart field carrying the CAPTCHA image.
	uploadField = "captchaImage"
	healthBody  = "API is running"
)

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// HEAD falls through to the GET handler
	r.Use(middleware.GetHead)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(singleResponse)

	h := &handlers{svc: svc}

	r.Get("/health", h.health)
	r.Get("/api", h.health)
	r.Get("/encoder-metadata", h.encoderMetadata)
	r.Get("/api/captcha-encoder", h.encoderMetadata)
	r.Post("/predict", h.predict)
	r.Post("/api/predict-captcha", h.predict)
	r.Get("/model-spec", h.modelSpec)
	r.Get("/readyz", h.readyz)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	if staticDir != "" {
		r.Get("/*", http.FileServer(http.Dir(staticDir)).ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, r, http.StatusNotFound, "Not found")
		})
	}
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

type handlers struct {
	svc Service
}

// health godoc
// @Summary      Liveness check
// @Description  Always answers while the process is serving.
// @Tags         system
// @Produce      plain
// @Success      200  {string}  string  "API is running"
// @Router       /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeText(w, r, http.StatusOK, healthBody)
}

// readyz godoc
// @Summary      Readiness check
// @Description  Ready once the predictor and encoder scripts exist.
// @Tags         system
// @Produce      plain
// @Success      200  {string}  string  "ready"
// @Failure      503  {string}  string  "scripts missing"
// @Router       /readyz [get]
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		writeText(w, r, http.StatusOK, "ready")
		return
	}
	writeText(w, r, http.StatusServiceUnavailable, "scripts missing")
}

// modelSpec godoc
// @Summary      Model input constraints
// @Tags         captcha
// @Produce      json
// @Success      200  {object}  types.ModelSpec
// @Router       /model-spec [get]
func (h *handlers) modelSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.svc.ModelSpec())
}

// encoderMetadata godoc
// @Summary      Label encoder metadata
// @Description  Runs the encoder script against the configured resource and returns its JSON unchanged.
// @Tags         captcha
// @Produce      json
// @Success      200  {object}  object
// @Failure      500  {object}  types.ErrorResponse
// @Router       /encoder-metadata [get]
func (h *handlers) encoderMetadata(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	meta, err := h.svc.EncoderMetadata(ctx)
	if err != nil {
		if aborted(r) {
			logRequestEnd(r, "encoder", 0, start, err)
			return
		}
		status := writeError(w, r, err)
		logRequestEnd(r, "encoder", status, start, err)
		return
	}
	if claim(w, r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(meta)
	}
	logRequestEnd(r, "encoder", http.StatusOK, start, nil)
}

// predict godoc
// @Summary      Recognize a CAPTCHA
// @Description  Stores the upload transiently, runs the prediction script on it and returns the decoded text.
// @Tags         captcha
// @Accept       multipart/form-data
// @Produce      json
// @Param        captchaImage  formData  file  true  "CAPTCHA image"
// @Success      200  {object}  types.PredictionResult
// @Failure      400  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      415  {object}  types.ErrorResponse
// @Failure      429  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	img, err := readUpload(r)
	if err != nil {
		status := writeError(w, r, err)
		observePrediction("rejected")
		logRequestEnd(r, "predict", status, start, err)
		return
	}
	if requestLogLevel(r) >= LevelDebug {
		debugf(r, "upload received", map[string]any{
			"filename":     img.Filename,
			"content_type": img.ContentType,
			"size":         len(img.Data),
		})
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	res, err := h.svc.Predict(ctx, img)
	if err != nil {
		// If context was canceled (client disconnect or shutdown), just return.
		if aborted(r) {
			observePrediction("canceled")
			logRequestEnd(r, "predict", 0, start, err)
			return
		}
		status := writeError(w, r, err)
		observePrediction(errorResponse(err).Category)
		logRequestEnd(r, "predict", status, start, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
	observePrediction("ok")
	logRequestEnd(r, "predict", http.StatusOK, start, nil)
}

// readUpload extracts the captchaImage part. A missing field, an empty body
// and a non-multipart body all mean "no file".
func readUpload(r *http.Request) (types.UploadedImage, error) {
	file, hdr, err := r.FormFile(uploadField)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		if tooLarge(err) {
			return types.UploadedImage{}, errFileTooLarge
		}
		return types.UploadedImage{}, errNoFile
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(err) {
			return types.UploadedImage{}, errFileTooLarge
		}
		return types.UploadedImage{}, errNoFile
	}
	return types.UploadedImage{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func aborted(r *http.Request) bool {
	return r.Context().Err() != nil || serverBaseCtx.Err() != nil
}

func writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	if !claim(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
