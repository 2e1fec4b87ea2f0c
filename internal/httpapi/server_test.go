package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"captchad/internal/inference"
	"captchad/internal/invoker"
	"captchad/pkg/types"
)

type mockService struct {
	ready      bool
	spec       types.ModelSpec
	result     types.PredictionResult
	predictErr error
	meta       json.RawMessage
	metaErr    error

	got types.UploadedImage
}

func (m *mockService) Predict(ctx context.Context, img types.UploadedImage) (types.PredictionResult, error) {
	m.got = img
	if m.predictErr != nil {
		return types.PredictionResult{}, m.predictErr
	}
	return m.result, nil
}

func (m *mockService) EncoderMetadata(ctx context.Context) (json.RawMessage, error) {
	if m.metaErr != nil {
		return nil, m.metaErr
	}
	return m.meta, nil
}

func (m *mockService) ModelSpec() types.ModelSpec { return m.spec }
func (m *mockService) Ready() bool                { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

// multipartBody builds a request body carrying one file part.
func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func predictRequest(t *testing.T, path string, data []byte) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, uploadField, "c.png", data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	r := NewMux(&mockService{})
	for _, path := range []string{"/health", "/api"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, w.Code)
		}
		if w.Body.String() != "API is running" {
			t.Fatalf("%s body=%q", path, w.Body.String())
		}
	}
}

func TestHeadOnGetRoutes(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	for _, path := range []string{"/health", "/readyz", "/model-spec"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("HEAD %s status=%d", path, w.Code)
		}
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	r := NewMux(&mockService{ready: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scripts missing") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestModelSpec(t *testing.T) {
	r := NewMux(&mockService{spec: types.DefaultModelSpec()})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model-spec", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ModelSpec
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.ImageWidth != 200 || body.Charset != "2345678bcdefgmnpwxy" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestEncoderMetadataPassesJSONThrough(t *testing.T) {
	meta := json.RawMessage(`{"classes":["2","3","b"],"n":3}`)
	r := NewMux(&mockService{meta: meta})
	for _, path := range []string{"/encoder-metadata", "/api/captcha-encoder"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, w.Code)
		}
		if w.Body.String() != string(meta) {
			t.Fatalf("%s body=%q", path, w.Body.String())
		}
	}
}

func TestEncoderMetadataScriptFailure(t *testing.T) {
	err := &inference.Error{
		Op:      inference.OpEncoder,
		Kind:    inference.KindExit,
		Message: "Encoder script execution failed.",
		Detail:  json.RawMessage(`{"error":"pickle not found"}`),
	}
	r := NewMux(&mockService{metaErr: err})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/encoder-metadata", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error != "Encoder script execution failed." || body.Category != "execution_failure" {
		t.Fatalf("unexpected body: %+v", body)
	}
	details, _ := body.Details.(map[string]any)
	if details["error"] != "pickle not found" {
		t.Fatalf("structured stderr not passed through: %#v", body.Details)
	}
}

func TestPredictSuccess(t *testing.T) {
	svc := &mockService{result: types.PredictionResult{Text: "abc23", Confidence: 0.97}}
	r := NewMux(svc)
	for _, path := range []string{"/predict", "/api/predict-captcha"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, predictRequest(t, path, []byte("\x89PNG fake")))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, w.Code, w.Body.String())
		}
		var res types.PredictionResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
			t.Fatalf("json: %v", err)
		}
		if res.Text != "abc23" || res.Confidence != 0.97 {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if svc.got.Filename != "c.png" || string(svc.got.Data) != "\x89PNG fake" {
		t.Fatalf("upload not forwarded: %+v", svc.got)
	}
}

func TestPredictNoFile(t *testing.T) {
	cases := map[string]func() *http.Request{
		"empty body": func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/predict", nil)
		},
		"not multipart": func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"x":1}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		},
		"wrong field": func() *http.Request {
			body, ct := multipartBody(t, "image", "c.png", []byte("data"))
			req := httptest.NewRequest(http.MethodPost, "/predict", body)
			req.Header.Set("Content-Type", ct)
			return req
		},
	}
	for name, mk := range cases {
		svc := &mockService{}
		w := httptest.NewRecorder()
		NewMux(svc).ServeHTTP(w, mk())
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", name, w.Code)
		}
		if body := decodeError(t, w); body.Error != "No file uploaded" {
			t.Fatalf("%s: error=%q", name, body.Error)
		}
		if svc.got.Data != nil {
			t.Fatalf("%s: service must not be called", name)
		}
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	defer SetMaxUploadBytes(0)
	SetMaxUploadBytes(1024)
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, predictRequest(t, "/predict", bytes.Repeat([]byte{'a'}, 4096)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestPredictErrorMapping(t *testing.T) {
	formatErr := &inference.Error{
		Op:      inference.OpPredict,
		Kind:    inference.KindFormat,
		Message: "Invalid prediction script output format.",
		Detail:  "invalid character 'o' looking for beginning of value",
		Outcome: invoker.Outcome{Stdout: "not json", Stderr: "warning"},
	}
	cases := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"busy", mockHTTPError{msg: "Server is busy, try again later.", code: http.StatusTooManyRequests}, http.StatusTooManyRequests, ""},
		{"generic", io.EOF, http.StatusInternalServerError, "internal"},
		{"format", formatErr, http.StatusInternalServerError, "format_error"},
		{"script missing", &inference.Error{Op: inference.OpPredict, Kind: inference.KindScriptMissing, Message: "Prediction script missing on server."}, http.StatusInternalServerError, "script_missing"},
		{"wrapped", errors.Join(errors.New("ctx"), mockHTTPError{msg: "teapot", code: http.StatusTeapot}), http.StatusTeapot, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		NewMux(&mockService{predictErr: tc.err}).ServeHTTP(w, predictRequest(t, "/predict", []byte("img")))
		if w.Code != tc.status {
			t.Fatalf("%s: status=%d", tc.name, w.Code)
		}
		body := decodeError(t, w)
		if body.Code != tc.status || body.Category != tc.category || body.Error == "" {
			t.Fatalf("%s: unexpected body %+v", tc.name, body)
		}
		if tc.name == "format" && (body.RawOutput != "not json" || body.RawError != "warning") {
			t.Fatalf("format error must carry raw streams: %+v", body)
		}
	}
}

func TestPredictCanceledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &cancelService{cancel: cancel}
	w := httptest.NewRecorder()
	req := predictRequest(t, "/predict", []byte("img")).WithContext(ctx)
	NewMux(svc).ServeHTTP(w, req)
	if w.Body.Len() != 0 {
		t.Fatalf("expected no body after client disconnect, got %q", w.Body.String())
	}
}

// cancelService simulates the client going away while the script runs.
type cancelService struct {
	mockService
	cancel context.CancelFunc
}

func (c *cancelService) Predict(ctx context.Context, img types.UploadedImage) (types.PredictionResult, error) {
	c.cancel()
	<-ctx.Done()
	return types.PredictionResult{}, ctx.Err()
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(&mockService{ready: true})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decodeError(t, w); body.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStaticDirServesFrontEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>captcha</h1>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	SetStaticDir(dir)
	defer SetStaticDir("")

	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "captcha") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	// API routes still win
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Body.String() != "API is running" {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestPredictWithDebugLogging(t *testing.T) {
	svc := &mockService{predictErr: &inference.Error{Op: inference.OpPredict, Kind: inference.KindExit, Message: "Prediction script execution failed.", Detail: "boom"}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, predictRequest(t, "/predict?log=debug", []byte("img")))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decodeError(t, w); body.Details != "boom" {
		t.Fatalf("details=%#v", body.Details)
	}
}
