// Package openai provides an STT backend using the OpenAI audio
// transcription API.
package openai

import (
	"context"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/stt"
)

// Config holds the API settings. BaseURL may point at any OpenAI-compatible
// server and must include the /v1 suffix.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string // ISO 639-1 hint
}

// Backend implements stt.Backend. The hosted API serves a single model, so
// every size maps to Config.Model.
type Backend struct {
	cfg    Config
	client *goopenai.Client
}

// New creates an OpenAI transcription backend.
func New(cfg Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Backend{cfg: cfg, client: goopenai.NewClientWithConfig(clientCfg)}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "openai" }

// Load verifies the configured model is reachable with the API key.
func (b *Backend) Load(ctx context.Context, size stt.ModelSize) (stt.Model, error) {
	if b.cfg.APIKey == "" {
		return nil, apperr.Errorf(apperr.KindModelLoad, "openai.load", "OPENAI_API_KEY not set")
	}
	if _, err := b.client.GetModel(ctx, b.cfg.Model); err != nil {
		return nil, apperr.E(apperr.KindModelLoad, "openai.load", err)
	}
	return &model{backend: b, size: size}, nil
}

type model struct {
	backend *Backend
	size    stt.ModelSize
}

func (m *model) Size() stt.ModelSize { return m.size }

func (m *model) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := m.backend.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    m.backend.cfg.Model,
		FilePath: path,
		Language: m.backend.cfg.Language,
	})
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "openai.transcribe", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperr.Errorf(apperr.KindTranscription, "openai.transcribe", "no speech recognized")
	}
	return text, nil
}
