// Package openai provides a lightweight TTS backend using the OpenAI speech
// API.
package openai

import (
	"context"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/tts"
)

var speeds = map[tts.Speed]float64{
	tts.SpeedNormal: 1.0,
	tts.SpeedSlow:   0.75,
}

// Config holds the API settings. The model infers language from the text.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// Backend implements tts.Backend.
type Backend struct {
	cfg    Config
	client *goopenai.Client
}

// New creates an OpenAI speech backend.
func New(cfg Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = string(goopenai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(goopenai.VoiceAlloy)
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Backend{cfg: cfg, client: goopenai.NewClientWithConfig(clientCfg)}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "openai" }

// Synthesize requests MP3 speech for the full text.
func (b *Backend) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if b.cfg.APIKey == "" {
		return tts.Audio{}, apperr.Errorf(apperr.KindSynthesis, "openai.synthesize", "OPENAI_API_KEY not set")
	}
	speed, ok := speeds[req.Speed]
	if !ok {
		speed = speeds[tts.SpeedNormal]
	}

	resp, err := b.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(b.cfg.Model),
		Input:          req.Text,
		Voice:          goopenai.SpeechVoice(b.cfg.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "openai.synthesize", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "openai.synthesize", err)
	}
	return tts.Audio{Data: data, Encoding: tts.EncodingMP3}, nil
}
