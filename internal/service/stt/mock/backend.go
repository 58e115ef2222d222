// Package mock provides a deterministic STT backend for running without
// cloud credentials or a model sidecar.
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/stt"
)

// DefaultTranscript is returned when no text is configured.
const DefaultTranscript = "hello world"

// Backend implements stt.Backend. Every model returns the same text for any
// readable, non-empty audio file.
type Backend struct {
	Text          string
	LoadDelay     time.Duration // simulated model instantiation time
	LoadErr       error
	TranscribeErr error

	mu    sync.Mutex
	loads map[stt.ModelSize]int
}

// New creates a mock backend returning text.
func New(text string) *Backend {
	if text == "" {
		text = DefaultTranscript
	}
	return &Backend{Text: text, loads: make(map[stt.ModelSize]int)}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "mock" }

// Load counts the load and returns a model.
func (b *Backend) Load(ctx context.Context, size stt.ModelSize) (stt.Model, error) {
	if b.LoadDelay > 0 {
		select {
		case <-time.After(b.LoadDelay):
		case <-ctx.Done():
			return nil, apperr.E(apperr.KindModelLoad, "mock.load", ctx.Err())
		}
	}

	b.mu.Lock()
	if b.loads == nil {
		b.loads = make(map[stt.ModelSize]int)
	}
	b.loads[size]++
	b.mu.Unlock()

	if b.LoadErr != nil {
		return nil, apperr.E(apperr.KindModelLoad, "mock.load", b.LoadErr)
	}
	return &model{backend: b, size: size}, nil
}

// Loads returns how many times size was loaded.
func (b *Backend) Loads(size stt.ModelSize) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads[size]
}

// TotalLoads returns the number of loads across all sizes.
func (b *Backend) TotalLoads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.loads {
		n += c
	}
	return n
}

type model struct {
	backend *Backend
	size    stt.ModelSize
}

func (m *model) Size() stt.ModelSize { return m.size }

func (m *model) Transcribe(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.E(apperr.KindTranscription, "mock.transcribe", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "mock.transcribe", err)
	}
	if info.Size() == 0 {
		return "", apperr.Errorf(apperr.KindTranscription, "mock.transcribe", "audio file is empty")
	}
	if m.backend.TranscribeErr != nil {
		return "", apperr.E(apperr.KindTranscription, "mock.transcribe", m.backend.TranscribeErr)
	}
	return m.backend.Text, nil
}
