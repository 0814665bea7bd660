package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request trace ID
const RequestIDHeader = "X-Request-Id"

// traceMiddleware assigns every request a trace ID, honoring one supplied
// by the caller.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithTraceID(r.Context(), traceID)))
	})
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.WithContext(r.Context()).Debug("Request served",
				logging.F("method", r.Method),
				logging.F("path", r.URL.Path),
				logging.F("status", ww.Status()),
				logging.F("bytes", ww.BytesWritten()),
				logging.F("elapsed", time.Since(start).String()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// corsMiddleware sets Access-Control headers for allowed origins and
// answers preflight requests. An empty list disables CORS; "*" allows any
// origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := ""
			switch {
			case len(origins) == 0 || origin == "":
			case allowAll:
				allowed = "*"
			case slices.Contains(origins, origin):
				allowed = origin
				w.Header().Add("Vary", "Origin")
			}

			if allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
