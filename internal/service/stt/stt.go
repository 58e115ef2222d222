// Package stt defines the speech-to-text backend interfaces and the
// per-session model cache.
package stt

import (
	"context"
	"strings"

	"ai-speech-roundtrip-service/internal/apperr"
)

// ModelSize selects the capacity of the recognition model.
type ModelSize string

const (
	SizeTiny   ModelSize = "tiny"
	SizeBase   ModelSize = "base"
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
)

// ModelSizes lists the accepted sizes, smallest first.
var ModelSizes = []ModelSize{SizeTiny, SizeBase, SizeSmall, SizeMedium}

// ParseModelSize validates a model size name.
func ParseModelSize(s string) (ModelSize, error) {
	size := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range ModelSizes {
		if m == size {
			return m, nil
		}
	}
	return "", apperr.Errorf(apperr.KindUserInput, "stt.parse",
		"unsupported model size %q (accepted: tiny, base, small, medium)", s)
}

func (s ModelSize) String() string { return string(s) }

// Model is a loaded recognition model.
type Model interface {
	// Size reports the size the model was loaded with.
	Size() ModelSize

	// Transcribe decodes the audio file at path and returns its text.
	Transcribe(ctx context.Context, path string) (string, error)
}

// Backend instantiates models (Whisper sidecar, OpenAI, Google, mock).
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Load instantiates a model of the given size.
	Load(ctx context.Context, size ModelSize) (Model, error)
}

// LoadError classifies err as a model load failure unless it is already
// classified.
func LoadError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.E(apperr.KindModelLoad, op, err)
}

// TranscriptionError classifies err as a decode failure unless it is already
// classified.
func TranscriptionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.E(apperr.KindTranscription, op, err)
}
