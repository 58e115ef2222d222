package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "ai-speech-roundtrip-service/internal/api/grpc"
	"ai-speech-roundtrip-service/internal/app"
	"ai-speech-roundtrip-service/internal/config"
	"ai-speech-roundtrip-service/internal/events"
	httpapi "ai-speech-roundtrip-service/internal/http"
	"ai-speech-roundtrip-service/internal/models"
	"ai-speech-roundtrip-service/internal/observability"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/audio"
	"ai-speech-roundtrip-service/internal/service/ingest"
	"ai-speech-roundtrip-service/internal/service/language"
	"ai-speech-roundtrip-service/internal/service/providers"
	"ai-speech-roundtrip-service/internal/service/session"
	"ai-speech-roundtrip-service/internal/service/stt"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	m := metrics.DefaultMetrics

	defaultSize, err := stt.ParseModelSize(cfg.STT.DefaultModelSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid STT_DEFAULT_MODEL_SIZE")
	}
	if _, err := language.Lookup(cfg.TTS.DefaultLanguage); err != nil {
		log.Fatal().Err(err).Msg("Invalid TTS_DEFAULT_LANGUAGE")
	}

	// Clips live in a directory the service owns so the startup purge never
	// touches foreign files.
	store, err := ingest.NewStore(filepath.Join(cfg.Session.TempDir, "speech-roundtrip"), ingest.Limits{
		MaxBytes:              cfg.Session.MaxUploadBytes,
		RecordingSampleRateHz: cfg.Session.RecordingSampleRateHz,
	}, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create clip store")
	}
	if n, err := store.Purge(); err != nil {
		log.Warn().Err(err).Int("removed", n).Msg("Failed to purge orphaned clips")
	} else if n > 0 {
		log.Info().Int("removed", n).Str("dir", store.Dir()).Msg("Purged orphaned clips")
	}

	sttBackend, err := providers.NewSTT(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure STT backend")
	}
	if c, ok := sttBackend.(interface{ Close() error }); ok {
		defer c.Close()
	}
	selector, err := providers.NewSelector(cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure TTS backends")
	}

	// Create Kafka publisher with separate topics for transcripts and syntheses
	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		TopicSyntheses:   cfg.Kafka.TopicSyntheses,
		Principal:        cfg.Kafka.Principal,
		Metrics:          m,
	})
	defer publisher.Close()
	fanout := events.NewFanout(publisher)

	sessions := session.NewManager(session.Options{
		Backend:       sttBackend,
		IdleTTL:       cfg.Session.IdleTTL,
		SweepInterval: cfg.Session.SweepInterval,
		Metrics:       m,
		OnEnd: func(id, reason string, removedAudio bool) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := fanout.Publish(ctx, models.NewSessionCleared(id, reason, removedAudio)); err != nil {
				log.Warn().Err(err).Str("sessionId", id).Msg("Failed to publish session end")
			}
			fanout.CloseSession(id)
		},
	})

	pipeline := audio.NewHandlerWithDefaults(store, selector, fanout, m, audio.Defaults{
		ModelSize: defaultSize,
		Language:  cfg.TTS.DefaultLanguage,
	})
	hub := httpapi.NewHub(fanout, originChecker(cfg.Service.CORSAllowedOrigins))

	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Options{
			Sessions:           sessions,
			Pipeline:           pipeline,
			Hub:                hub,
			Metrics:            m,
			MaxUploadBytes:     cfg.Session.MaxUploadBytes,
			CORSAllowedOrigins: cfg.Service.CORSAllowedOrigins,
			RateLimitPerMinute: cfg.Service.RateLimitPerMinute,
			Ready:              application.Ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, application.Ready)
	obsServer.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen for gRPC")
	}
	grpcServer := grpcapi.New(m)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.Run(ctx)

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application start failed")
	}
	grpcServer.SetAllServing(true)

	<-ctx.Done()

	application.Shutdown()
	grpcServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}
	n := sessions.Close()
	log.Info().Int("sessions", n).Msg("Sessions torn down")

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown error")
	}
}

// originChecker returns nil (allow all) when origins contains "*".
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)]
	}
}

