package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSingleResponse_SuppressesSecondResponse(t *testing.T) {
	var logs bytes.Buffer
	SetLogger(zerolog.New(&logs))
	defer func() { zlog = nil }()

	h := singleResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"text": "abc23"})
		writeJSONError(w, r, http.StatusInternalServerError, "late failure")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "late failure") {
		t.Fatalf("second response leaked into body: %q", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "suppressed second response") {
		t.Fatalf("duplicate not logged: %q", logs.String())
	}
}

func TestGuardedWriter_DropsSecondWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	g := &guardedWriter{ResponseWriter: rec}
	g.WriteHeader(http.StatusAccepted)
	g.WriteHeader(http.StatusInternalServerError)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestClaim_UnwrappedWriterAlwaysAllowed(t *testing.T) {
	if !claim(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("plain writer should be claimable")
	}
}
