package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// authRealm is used in the WWW-Authenticate challenge on a 401 response.
const authRealm = `Basic realm="ragd"`

// requireAuth wraps next, accepting either an `Authorization: Basic` header
// carrying the admin password or an `Authorization: Bearer` header
// carrying a token issued by /api/authenticate. A missing or invalid
// credential yields 401 with a WWW-Authenticate challenge, per spec.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.unauthorized(w)
			return
		}

		switch {
		case strings.HasPrefix(header, "Bearer "):
			token := strings.TrimPrefix(header, "Bearer ")
			if !s.tokens.Verify(token) {
				s.unauthorized(w)
				return
			}
		case strings.HasPrefix(header, "Basic "):
			password, ok := decodeBasicPassword(strings.TrimPrefix(header, "Basic "))
			if !ok || !s.admin.VerifyPassword(password) {
				s.unauthorized(w)
				return
			}
		default:
			s.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authRealm)
	writeError(w, http.StatusUnauthorized, "authentication required")
}

// decodeBasicPassword extracts the password half of a base64("user:pass")
// Basic-auth credential. The username is ignored; the admin credential has
// exactly one principal.
func decodeBasicPassword(encoded string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", false
	}
	return parts[1], true
}

// withMetrics times the wrapped handler and records it against endpoint in
// the server's moving-average and Prometheus counters. isError inspects
// the status code written by the inner handler via a response recorder.
func (s *Server) withMetrics(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.observe(endpoint, time.Since(start), rec.status >= 400)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter's Flusher when present,
// so SSE handlers wrapped by withMetrics can still stream incrementally.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestSizeLimit caps the request body to maxBytes, matching the
// teacher's 10MB cap via chimiddleware.RequestSize but scoped to this
// service's own configured limit.
func requestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

