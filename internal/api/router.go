package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/edge-case-lab/pkg/lab"
)

// RequestIDHeader carries the per-request id in both directions
const RequestIDHeader = "X-Request-ID"

// NewRouter wires the session handlers to a chi router
func NewRouter(session *lab.Session, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandlers(session, logger)

	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.CatalogHandler)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.SessionHandler)
			r.Put("/params", h.SetParamsHandler)
			r.Put("/params/{field}", h.SetParamHandler)
			r.Post("/preset/{label}", h.PresetHandler)
			r.Post("/scenario/{id}", h.ScenarioHandler)
			r.Post("/reset", h.ResetHandler)
			r.Post("/image/{id}", h.ImageHandler)
			r.Get("/preview.png", h.PreviewHandler)
			r.Get("/export", h.ExportHandler)
			r.Post("/analyze", h.AnalyzeHandler)
		})
	})

	return r
}

// requestID takes the caller's X-Request-ID or mints a uuid
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(withRequestID(ctx, id)))
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", RequestID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
