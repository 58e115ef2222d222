// Package providers builds the transcription and synthesis backends named in
// the configuration.
package providers

import (
	"strings"

	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/config"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/language"
	"ai-speech-roundtrip-service/internal/service/stt"
	sttgoogle "ai-speech-roundtrip-service/internal/service/stt/google"
	"ai-speech-roundtrip-service/internal/service/stt/mock"
	sttopenai "ai-speech-roundtrip-service/internal/service/stt/openai"
	"ai-speech-roundtrip-service/internal/service/stt/whisper"
	"ai-speech-roundtrip-service/internal/service/tts"
	"ai-speech-roundtrip-service/internal/service/tts/elevenlabs"
	ttsopenai "ai-speech-roundtrip-service/internal/service/tts/openai"
	"ai-speech-roundtrip-service/internal/service/tts/translate"
)

// Supported STT providers.
const (
	STTMock    = "mock"
	STTWhisper = "whisper"
	STTOpenAI  = "openai"
	STTGoogle  = "google"
)

// Supported TTS backends.
const (
	TTSTranslate  = "translate"
	TTSOpenAI     = "openai"
	TTSElevenLabs = "elevenlabs"
)

// NewSTT returns the speech-to-text backend selected by cfg.Provider.
func NewSTT(cfg config.STTConfig) (stt.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", STTMock:
		return mock.New(cfg.MockTranscript), nil
	case STTWhisper:
		return whisper.New(whisper.Config{
			URL:      cfg.WhisperURL,
			Language: language.Base(cfg.LanguageCode),
			Timeout:  cfg.WhisperTimeout,
		}), nil
	case STTOpenAI:
		return sttopenai.New(sttopenai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Language: language.Base(cfg.LanguageCode),
		}), nil
	case STTGoogle:
		return sttgoogle.New(sttgoogle.Config{
			LanguageCode:  cfg.LanguageCode,
			SampleRateHz:  cfg.SampleRateHz,
			AudioEncoding: cfg.AudioEncoding,
		}), nil
	}
	return nil, apperr.Errorf(apperr.KindUserInput, "providers.stt", "unknown STT provider %q", cfg.Provider)
}

// NewSelector builds the TTS selector. cfg.TTS.Backends lists the
// lightweight backends in priority order. The ElevenLabs voice-cloning
// backend is offered as a heavy backend when a key and voice are set.
func NewSelector(cfg *config.Configuration, m *metrics.Metrics) (*tts.Selector, error) {
	var light []tts.Backend
	seen := make(map[string]bool)
	for _, name := range cfg.TTS.Backends {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case TTSTranslate:
			light = append(light, translate.New(translate.Config{URL: cfg.TTS.TranslateURL, Timeout: cfg.TTS.Timeout}))
		case TTSOpenAI:
			if cfg.STT.OpenAIAPIKey == "" {
				log.Warn().Str("backend", name).Msg("OPENAI_API_KEY not set, skipping TTS backend")
				continue
			}
			light = append(light, ttsopenai.New(ttsopenai.Config{
				APIKey:  cfg.STT.OpenAIAPIKey,
				BaseURL: cfg.STT.OpenAIBaseURL,
				Model:   cfg.TTS.OpenAIModel,
				Voice:   cfg.TTS.OpenAIVoice,
			}))
		case TTSElevenLabs:
			// Heavy only; configured below.
		default:
			return nil, apperr.Errorf(apperr.KindUserInput, "providers.tts", "unknown TTS backend %q", name)
		}
	}
	if len(light) == 0 {
		return nil, apperr.Errorf(apperr.KindUserInput, "providers.tts", "no lightweight TTS backend configured")
	}

	var heavy []tts.HeavyBackend
	if cfg.TTS.ElevenLabsAPIKey != "" && cfg.TTS.ElevenLabsVoiceID != "" {
		heavy = append(heavy, elevenlabs.New(elevenlabs.Config{
			APIKey:  cfg.TTS.ElevenLabsAPIKey,
			VoiceID: cfg.TTS.ElevenLabsVoiceID,
			ModelID: cfg.TTS.ElevenLabsModelID,
			URL:     cfg.TTS.ElevenLabsURL,
			Timeout: cfg.TTS.Timeout,
		}))
	}

	strategy, err := tts.ParseStrategy(cfg.TTS.Strategy, cfg.TTS.Backends)
	if err != nil {
		return nil, err
	}

	sel := tts.NewSelector(light, heavy, tts.Options{
		Strategy: strategy,
		MaxChars: cfg.Session.MaxSynthesisChars,
		Metrics:  m,
	})
	log.Info().
		Strs("lightweight", sel.Lightweight()).
		Strs("heavy", sel.HeavyNames()).
		Str("strategy", strategy.Name()).
		Msg("TTS backends configured")
	return sel, nil
}
