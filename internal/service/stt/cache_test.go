package stt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/stt"
	"ai-speech-roundtrip-service/internal/service/stt/mock"
)

func newCache(b stt.Backend) *stt.Cache {
	return stt.NewCache(b, metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestParseModelSize(t *testing.T) {
	tests := []struct {
		input   string
		want    stt.ModelSize
		wantErr bool
	}{
		{"tiny", stt.SizeTiny, false},
		{"base", stt.SizeBase, false},
		{" Small ", stt.SizeSmall, false},
		{"MEDIUM", stt.SizeMedium, false},
		{"large", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := stt.ParseModelSize(tt.input)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrUserInput) {
					t.Errorf("expected user input error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCache_LoadsOnce(t *testing.T) {
	b := mock.New("")
	c := newCache(b)
	ctx := context.Background()

	m1, err := c.Get(ctx, stt.SizeBase)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	m2, err := c.Get(ctx, stt.SizeBase)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if m1 != m2 {
		t.Error("expected the same model instance for repeated Get")
	}
	if got := b.Loads(stt.SizeBase); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
}

func TestCache_SizesAreIndependent(t *testing.T) {
	b := mock.New("")
	c := newCache(b)
	ctx := context.Background()

	c.Get(ctx, stt.SizeMedium)
	c.Get(ctx, stt.SizeTiny)
	c.Get(ctx, stt.SizeTiny)

	if got := b.TotalLoads(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
	loaded := c.Loaded()
	if len(loaded) != 2 || loaded[0] != stt.SizeTiny || loaded[1] != stt.SizeMedium {
		t.Errorf("expected [tiny medium], got %v", loaded)
	}
}

func TestCache_ConcurrentGetSharesLoad(t *testing.T) {
	b := mock.New("")
	b.LoadDelay = 50 * time.Millisecond
	c := newCache(b)

	var wg sync.WaitGroup
	models := make([]stt.Model, 8)
	for i := range models {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := c.Get(context.Background(), stt.SizeSmall)
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
			models[i] = m
		}(i)
	}
	wg.Wait()

	if got := b.Loads(stt.SizeSmall); got != 1 {
		t.Errorf("expected concurrent callers to share 1 load, got %d", got)
	}
	for i := 1; i < len(models); i++ {
		if models[i] != models[0] {
			t.Error("expected all callers to receive the same model")
		}
	}
}

func TestCache_Reload(t *testing.T) {
	b := mock.New("")
	c := newCache(b)
	ctx := context.Background()

	first, _ := c.Get(ctx, stt.SizeBase)
	second, err := c.Reload(ctx, stt.SizeBase)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if first == second {
		t.Error("expected Reload to replace the model")
	}
	if got := b.Loads(stt.SizeBase); got != 2 {
		t.Errorf("expected 2 loads after reload, got %d", got)
	}
	third, _ := c.Get(ctx, stt.SizeBase)
	if third != second {
		t.Error("expected Get after Reload to return the reloaded model")
	}
}

func TestCache_FailedLoadIsNotCached(t *testing.T) {
	b := mock.New("")
	b.LoadErr = errors.New("weights missing")
	c := newCache(b)
	ctx := context.Background()

	_, err := c.Get(ctx, stt.SizeBase)
	if !errors.Is(err, apperr.ErrModelLoad) {
		t.Fatalf("expected model load error, got %v", err)
	}
	if len(c.Loaded()) != 0 {
		t.Error("failed load should not be listed as loaded")
	}

	b.LoadErr = nil
	if _, err := c.Get(ctx, stt.SizeBase); err != nil {
		t.Fatalf("retry Get failed: %v", err)
	}
	if got := b.Loads(stt.SizeBase); got != 2 {
		t.Errorf("expected retry to load again, got %d loads", got)
	}
}

func TestCache_FailedReloadKeepsPrevious(t *testing.T) {
	b := mock.New("")
	c := newCache(b)
	ctx := context.Background()

	first, _ := c.Get(ctx, stt.SizeBase)
	b.LoadErr = errors.New("sidecar down")

	if _, err := c.Reload(ctx, stt.SizeBase); !errors.Is(err, apperr.ErrModelLoad) {
		t.Fatalf("expected model load error, got %v", err)
	}
	got, ok := c.Peek(stt.SizeBase)
	if !ok || got != first {
		t.Error("expected previous model to survive a failed reload")
	}
}

func TestCache_PeekNeverLoads(t *testing.T) {
	b := mock.New("")
	c := newCache(b)

	for i := 0; i < 3; i++ {
		if _, ok := c.Peek(stt.SizeBase); ok {
			t.Error("expected Peek to miss on empty cache")
		}
	}
	if b.TotalLoads() != 0 {
		t.Errorf("expected Peek not to load, got %d loads", b.TotalLoads())
	}
}

func TestCache_GetCanceledWhileWaiting(t *testing.T) {
	b := mock.New("")
	b.LoadDelay = 200 * time.Millisecond
	c := newCache(b)

	go c.Get(context.Background(), stt.SizeMedium)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, stt.SizeMedium)
	if !errors.Is(err, apperr.ErrModelLoad) {
		t.Errorf("expected model load error on canceled wait, got %v", err)
	}
}
