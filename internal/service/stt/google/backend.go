// Package google provides a Google Cloud Speech-to-Text backend.
package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/stt"
)

// Config holds recognition settings for headerless input. WAV clips carry
// their own header and are sent with an unspecified encoding. Compressed
// containers (mp3, m4a) are not decodable by Recognize v1 and are rejected.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// Google model per size, smallest and fastest first.
var models = map[stt.ModelSize]string{
	stt.SizeTiny:   "command_and_search",
	stt.SizeBase:   "default",
	stt.SizeSmall:  "latest_short",
	stt.SizeMedium: "latest_long",
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Backend implements stt.Backend using batch Recognize.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Backend struct {
	cfg Config

	mu        sync.Mutex
	client    *speech.Client
	recognize recognizeFunc
}

// New creates a Google backend. The client is created on first load.
func New(cfg Config) *Backend {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.AudioEncoding == "" {
		cfg.AudioEncoding = def.AudioEncoding
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "google" }

// Load ensures a client exists and returns a model bound to the Google
// recognition model for size.
func (b *Backend) Load(ctx context.Context, size stt.ModelSize) (stt.Model, error) {
	name, ok := models[size]
	if !ok {
		return nil, apperr.Errorf(apperr.KindModelLoad, "google.load", "no model for size %q", size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recognize == nil {
		c, err := speech.NewClient(ctx)
		if err != nil {
			return nil, apperr.E(apperr.KindModelLoad, "google.load", err)
		}
		b.client = c
		b.recognize = func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		}
	}
	return &model{cfg: b.cfg, size: size, name: name, recognize: b.recognize}, nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		err := b.client.Close()
		b.client = nil
		b.recognize = nil
		return err
	}
	return nil
}

type model struct {
	cfg       Config
	size      stt.ModelSize
	name      string
	recognize recognizeFunc
}

func (m *model) Size() stt.ModelSize { return m.size }

// unsupported lists containers Recognize v1 cannot decode.
var unsupported = map[string]bool{".mp3": true, ".m4a": true}

func (m *model) Transcribe(ctx context.Context, path string) (string, error) {
	if ext := strings.ToLower(filepath.Ext(path)); unsupported[ext] {
		return "", apperr.Errorf(apperr.KindTranscription, "google.transcribe",
			"%s audio is not supported by the google backend; upload WAV", strings.TrimPrefix(ext, "."))
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "google.transcribe", err)
	}

	resp, err := m.recognize(ctx, &speechpb.RecognizeRequest{
		Config: m.recognitionConfig(path),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", apperr.E(apperr.KindTranscription, "google.transcribe", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", apperr.Errorf(apperr.KindTranscription, "google.transcribe", "no speech recognized")
	}
	return strings.Join(parts, " "), nil
}

func (m *model) recognitionConfig(path string) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               m.cfg.LanguageCode,
		Model:                      m.name,
		EnableAutomaticPunctuation: true,
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		cfg.Encoding = speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	default:
		cfg.Encoding = parseAudioEncoding(m.cfg.AudioEncoding)
		cfg.SampleRateHertz = int32(m.cfg.SampleRateHz)
	}
	return cfg
}

// parseAudioEncoding maps an encoding name to the Speech API enum, falling
// back to LINEAR16. Names are matched exactly.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
