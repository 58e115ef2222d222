package app

import (
	"context"
	"testing"

	"ai-speech-roundtrip-service/internal/config"
)

func TestApplication_Lifecycle(t *testing.T) {
	cfg := &config.Configuration{}
	cfg.Observability.LogLevel = "error"
	a := New(cfg)

	if a.Ready(context.Background()) {
		t.Error("expected not ready before Start")
	}
	if a.Uptime() != 0 {
		t.Errorf("expected zero uptime before Start, got %v", a.Uptime())
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !a.Ready(context.Background()) {
		t.Error("expected ready after Start")
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}

	a.Shutdown()
	if a.Ready(context.Background()) {
		t.Error("expected not ready after Shutdown")
	}
}
