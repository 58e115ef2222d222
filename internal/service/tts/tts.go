// Package tts selects among text-to-speech backends and tracks the
// per-session heavy backend.
package tts

import (
	"context"
	"strings"

	"ai-speech-roundtrip-service/internal/apperr"
)

// Speed is the speaking rate.
type Speed string

const (
	SpeedNormal Speed = "normal"
	SpeedSlow   Speed = "slow"
)

// ParseSpeed validates a speed name. Empty means normal.
func ParseSpeed(s string) (Speed, error) {
	switch Speed(strings.ToLower(strings.TrimSpace(s))) {
	case "", SpeedNormal:
		return SpeedNormal, nil
	case SpeedSlow:
		return SpeedSlow, nil
	}
	return "", apperr.Errorf(apperr.KindUserInput, "tts.parse", "unsupported speed %q (accepted: normal, slow)", s)
}

// EncodingMP3 is the only container backends return.
const EncodingMP3 = "mp3"

// Request is a single synthesis input. Language is a wire code such as
// "en-gb".
type Request struct {
	Text     string
	Language string
	Speed    Speed
}

// Audio is synthesized speech.
type Audio struct {
	Data     []byte
	Encoding string
	Backend  string
}

// Backend synthesizes speech. Lightweight backends are always ready.
type Backend interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// HeavyBackend must be loaded before it can synthesize, such as a
// voice-cloning model.
type HeavyBackend interface {
	Backend
	Load(ctx context.Context) error
}
