package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// SessionMiddleware resolves the browser's session from its cookie, creating
// one when the cookie is missing, invalid or points at an evicted session.
// The cookie is re-issued on every request so its expiry slides with use.
func SessionMiddleware(cookies sessions.Store, reg *SessionStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A decode error yields a fresh cookie session, which is what we want.
			cs, _ := cookies.Get(r, cookieName)
			id, _ := cs.Values["sid"].(string)

			sess, created := reg.Acquire(id)
			if created {
				log.Info("session started", "session_id", sess.ID)
			}
			cs.Values["sid"] = sess.ID
			if err := cs.Save(r, w); err != nil {
				log.Error("failed to save session cookie", "error", err)
				jsonError(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}

// RequestLogger logs incoming requests.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
