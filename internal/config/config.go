// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration holds all service settings.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	TTS           TTSConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and HTTP surface settings.
type ServiceConfig struct {
	Principal          string
	HTTPPort           string
	GRPCPort           string
	MetricsPort        string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// STTConfig selects and configures the speech-to-text backend.
type STTConfig struct {
	Provider         string // mock, whisper, openai, google
	DefaultModelSize string
	LanguageCode     string
	WhisperURL       string
	WhisperTimeout   time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AudioEncoding    string
	SampleRateHz     int
	MockTranscript   string
}

// TTSConfig configures the text-to-speech backends and selection strategy.
type TTSConfig struct {
	Backends          []string // lightweight backends in priority order
	Strategy          string   // prefer-heavy, priority
	DefaultLanguage   string
	TranslateURL      string
	OpenAIModel       string
	OpenAIVoice       string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	ElevenLabsURL     string
	Timeout           time.Duration
}

// SessionConfig bounds session lifetime and per-request payloads.
type SessionConfig struct {
	TempDir               string
	IdleTTL               time.Duration
	SweepInterval         time.Duration
	MaxUploadBytes        int64
	MaxSynthesisChars     int
	RecordingSampleRateHz int
}

// KafkaConfig configures the event publisher.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTranscripts string
	TopicSyntheses   string
	Principal        string
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration, loading a .env file first when present.
func Load() *Configuration {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-roundtrip")

	return &Configuration{
		Service: ServiceConfig{
			Principal:          principal,
			HTTPPort:           envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:           envOrDefault("GRPC_PORT", "50051"),
			MetricsPort:        envOrDefault("METRICS_PORT", "9090"),
			CORSAllowedOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerMinute: envOrDefaultInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		STT: STTConfig{
			Provider:         envOrDefault("STT_PROVIDER", "mock"),
			DefaultModelSize: envOrDefault("STT_DEFAULT_MODEL_SIZE", "base"),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			WhisperURL:       envOrDefault("WHISPER_URL", "http://localhost:8387"),
			WhisperTimeout:   envOrDefaultDuration("WHISPER_TIMEOUT", 120*time.Second),
			OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
			OpenAIModel:      envOrDefault("STT_OPENAI_MODEL", "whisper-1"),
			AudioEncoding:    envOrDefault("STT_GOOGLE_AUDIO_ENCODING", "LINEAR16"),
			SampleRateHz:     envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			MockTranscript:   envOrDefault("STT_MOCK_TRANSCRIPT", "hello world"),
		},
		TTS: TTSConfig{
			Backends:          envOrDefaultList("TTS_BACKENDS", []string{"translate"}),
			Strategy:          envOrDefault("TTS_STRATEGY", "prefer-heavy"),
			DefaultLanguage:   envOrDefault("TTS_DEFAULT_LANGUAGE", "English"),
			TranslateURL:      envOrDefault("TTS_TRANSLATE_URL", "https://translate.google.com/translate_tts"),
			OpenAIModel:       envOrDefault("TTS_OPENAI_MODEL", "tts-1"),
			OpenAIVoice:       envOrDefault("TTS_OPENAI_VOICE", "alloy"),
			ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
			ElevenLabsModelID: envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			ElevenLabsURL:     envOrDefault("ELEVENLABS_URL", "https://api.elevenlabs.io"),
			Timeout:           envOrDefaultDuration("TTS_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			TempDir:               envOrDefault("SESSION_TEMP_DIR", os.TempDir()),
			IdleTTL:               envOrDefaultDuration("SESSION_IDLE_TTL", 30*time.Minute),
			SweepInterval:         envOrDefaultDuration("SESSION_SWEEP_INTERVAL", time.Minute),
			MaxUploadBytes:        envOrDefaultInt64("UPLOAD_MAX_BYTES", 25*1024*1024),
			MaxSynthesisChars:     envOrDefaultInt("SYNTHESIS_MAX_CHARS", 5000),
			RecordingSampleRateHz: envOrDefaultInt("RECORDING_SAMPLE_RATE_HZ", 16000),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "speech.transcript.completed"),
			TopicSyntheses:   envOrDefault("KAFKA_TOPIC_SYNTHESES", "speech.synthesis.completed"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
