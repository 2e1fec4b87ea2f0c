package httpapi

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// guardedWriter remembers whether a response has been started so that a
// handler can never send a second one.
type guardedWriter struct {
	http.ResponseWriter
	started bool
}

func (g *guardedWriter) WriteHeader(code int) {
	if g.started {
		return
	}
	g.started = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.started = true
	return g.ResponseWriter.Write(b)
}

func (g *guardedWriter) Unwrap() http.ResponseWriter { return g.ResponseWriter }

// singleResponse must be the innermost middleware: handlers type-assert the
// writer they receive.
func singleResponse(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&guardedWriter{ResponseWriter: w}, r)
	})
}

// claim reports whether a response may still be written on w. A refused
// attempt is logged.
func claim(w http.ResponseWriter, r *http.Request) bool {
	g, ok := w.(*guardedWriter)
	if !ok || !g.started {
		return true
	}
	if zlog != nil {
		ev := zlog.Warn().Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("suppressed second response")
	} else {
		log.Printf("suppressed second response path=%s", r.URL.Path)
	}
	return false
}
