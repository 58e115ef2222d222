// Package app holds process-wide lifecycle state for the service.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-roundtrip-service/internal/config"
	"ai-speech-roundtrip-service/internal/observability/logging"
)

// Application holds process-wide state for the service. It carries no
// session state.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration and
// initializes the global logger.
func New(cfg *config.Configuration) *Application {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	a := &Application{
		Cfg: cfg,
		Logger: logging.WithComponent("application").With().
			Str("service", cfg.Service.Principal).
			Logger(),
	}

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("sttProvider", cfg.STT.Provider).
		Strs("ttsBackends", cfg.TTS.Backends).
		Msg("AI Speech Round-Trip service application created")
	return a
}

// Start records the startup time and marks the service ready.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("AI Speech Round-Trip service starting")
	return nil
}

// Ready reports whether the service accepts traffic.
func (a *Application) Ready(context.Context) bool {
	return a.ready.Load()
}

// Uptime returns the time since Start.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown marks the service not ready so probes fail before listeners stop.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	a.Logger.Info().
		Str("method", "Shutdown").
		Dur("uptime", a.Uptime()).
		Msg("AI Speech Round-Trip service shutting down")
}
