// Package whisper provides an STT backend for a faster-whisper HTTP sidecar.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/stt"
)

const (
	defaultURL     = "http://localhost:8387"
	defaultTimeout = 120 * time.Second
)

// Config holds the sidecar settings.
type Config struct {
	URL      string
	Language string // ISO 639-1 hint, empty for auto-detect
	Timeout  time.Duration
}

// Backend implements stt.Backend against the sidecar. A load asks the
// sidecar whether it can serve the requested model.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New creates a whisper backend.
func New(cfg Config) *Backend {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Backend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "whisper" }

// Load checks the sidecar health endpoint for the given model.
func (b *Backend) Load(ctx context.Context, size stt.ModelSize) (stt.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.URL+"/health?model="+size.String(), nil)
	if err != nil {
		return nil, apperr.E(apperr.KindModelLoad, "whisper.load", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.KindModelLoad, "whisper.load", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperr.Errorf(apperr.KindModelLoad, "whisper.load",
			"sidecar not ready (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &model{backend: b, size: size}, nil
}

type model struct {
	backend *Backend
	size    stt.ModelSize
}

func (m *model) Size() stt.ModelSize { return m.size }

// Transcribe uploads the clip to the sidecar and returns its text.
func (m *model) Transcribe(ctx context.Context, path string) (string, error) {
	audioData, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", fmt.Errorf("read audio file: %w", err))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", err)
	}
	_ = writer.WriteField("model", m.size.String())
	if lang := m.backend.cfg.Language; lang != "" {
		_ = writer.WriteField("language", lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.backend.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.backend.client.Do(req)
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperr.Errorf(apperr.KindTranscription, "whisper.transcribe",
			"sidecar error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.E(apperr.KindTranscription, "whisper.transcribe", fmt.Errorf("decode response: %w", err))
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", apperr.Errorf(apperr.KindTranscription, "whisper.transcribe", "no speech recognized")
	}
	return text, nil
}

type response struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}
