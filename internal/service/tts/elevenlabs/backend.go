// Package elevenlabs provides the heavy voice-cloning TTS backend.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/tts"
)

const (
	defaultURL   = "https://api.elevenlabs.io"
	defaultModel = "eleven_multilingual_v2"
	outputFormat = "mp3_44100_128"
)

var speeds = map[tts.Speed]float64{
	tts.SpeedNormal: 1.0,
	tts.SpeedSlow:   0.7,
}

// Config holds the API settings. VoiceID names the cloned voice.
type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	URL     string
	Timeout time.Duration
}

// Backend implements tts.HeavyBackend. Load verifies the cloned voice
// exists. One Backend is shared by every session; readiness is tracked per
// session by tts.Slot.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New creates an ElevenLabs backend.
func New(cfg Config) *Backend {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Backend{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "elevenlabs" }

// Load checks credentials and that the configured voice is available.
func (b *Backend) Load(ctx context.Context) error {
	if b.cfg.APIKey == "" || b.cfg.VoiceID == "" {
		return apperr.Errorf(apperr.KindModelLoad, "elevenlabs.load", "ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID are required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.cfg.URL+"/v1/voices/"+url.PathEscape(b.cfg.VoiceID), nil)
	if err != nil {
		return apperr.E(apperr.KindModelLoad, "elevenlabs.load", err)
	}
	req.Header.Set("xi-api-key", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return apperr.E(apperr.KindModelLoad, "elevenlabs.load", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Errorf(apperr.KindModelLoad, "elevenlabs.load",
			"voice %s unavailable (status %d): %s", b.cfg.VoiceID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// Synthesize renders text in the cloned voice.
func (b *Backend) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if b.cfg.APIKey == "" || b.cfg.VoiceID == "" {
		return tts.Audio{}, apperr.Errorf(apperr.KindSynthesis, "elevenlabs.synthesize", "backend not configured")
	}
	speed, ok := speeds[req.Speed]
	if !ok {
		speed = speeds[tts.SpeedNormal]
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:    req.Text,
		ModelID: b.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.7,
			Speed:           speed,
		},
	})
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "elevenlabs.synthesize", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		b.cfg.URL, url.PathEscape(b.cfg.VoiceID), outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "elevenlabs.synthesize", err)
	}
	httpReq.Header.Set("xi-api-key", b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "elevenlabs.synthesize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Audio{}, apperr.Errorf(apperr.KindSynthesis, "elevenlabs.synthesize",
			"tts failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, apperr.E(apperr.KindSynthesis, "elevenlabs.synthesize", err)
	}
	return tts.Audio{Data: data, Encoding: tts.EncodingMP3}, nil
}
