// Package http exposes the round-trip pipeline as a JSON API, a WebSocket
// event stream and an embedded browser UI.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/schema"
	"ai-speech-roundtrip-service/internal/service/audio"
	"ai-speech-roundtrip-service/internal/service/session"
)

// Options configures the router.
type Options struct {
	Sessions *session.Manager
	Pipeline *audio.Handler
	Hub      *Hub
	Metrics  *metrics.Metrics

	// MaxUploadBytes bounds request bodies on audio routes.
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	RateLimitPerMinute int // 0 disables rate limiting
	Ready              func(ctx context.Context) bool
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	a := &api{
		sessions:  opts.Sessions,
		pipeline:  opts.Pipeline,
		hub:       opts.Hub,
		validator: schema.New(),
		maxUpload: opts.MaxUploadBytes,
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Synthesis-Backend"},
	}))
	r.Use(metricsMiddleware(opts.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil && !opts.Ready(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}

		r.Get("/languages", a.languages)
		r.Post("/sessions", a.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", a.getSession)
			r.Delete("/", a.deleteSession)
			r.Post("/clear", a.clear)
			r.Post("/audio", a.ingest)
			r.Get("/audio", a.sourceAudio)
			r.With(limitJSON).Post("/models", a.loadModel)
			r.Post("/transcribe", a.transcribe)
			r.With(limitJSON).Put("/transcript", a.editTranscript)
			r.With(limitJSON).Post("/speech", a.synthesize)
			r.Get("/speech", a.downloadSpeech)
			r.Get("/backends", a.backends)
			r.With(limitJSON).Post("/backends/heavy", a.activateHeavy)
			r.Delete("/backends/heavy", a.deactivateHeavy)
			if opts.Hub != nil {
				r.Get("/events", a.events)
			}
		})
	})

	r.Handle("/*", uiHandler())

	return r
}

func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
		})
	}
}
