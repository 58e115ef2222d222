package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ai-speech-roundtrip-service/internal/models"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscripts != nil || p.writerSyntheses != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		TopicTranscripts: "test.transcripts",
		TopicSyntheses:   "test.syntheses",
		Principal:        "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTranscripts != "test.transcripts" {
		t.Errorf("expected topic 'test.transcripts', got %s", p.topicTranscripts)
	}
	if p.topicSyntheses != "test.syntheses" {
		t.Errorf("expected topic 'test.syntheses', got %s", p.topicSyntheses)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:          true,
		Brokers:          []string{"localhost:9092"},
		TopicTranscripts: "t",
		TopicSyntheses:   "s",
	})
	defer p.Close()

	if !p.enabled {
		t.Error("expected publisher to be enabled")
	}
	if p.writerTranscripts == nil || p.writerTranscripts.Topic != "t" {
		t.Error("expected transcripts writer for topic t")
	}
	if p.writerSyntheses == nil || p.writerSyntheses.Topic != "s" {
		t.Error("expected syntheses writer for topic s")
	}
}

func TestPublisher_RoutesByEventType(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{
		TopicTranscripts: "test.transcripts",
		TopicSyntheses:   "test.syntheses",
		Principal:        "test-svc",
		Metrics:          m,
	})

	ctx := context.Background()
	events := []models.Event{
		models.NewTranscriptCompleted("s1"),
		models.NewTranscriptEdited("s1", "edited"),
		models.NewSpeechSynthesized("s1"),
	}
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			t.Errorf("expected no error when disabled, got %v", err)
		}
	}

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.syntheses", models.EventSpeechSynthesized)); got != 1 {
		t.Errorf("expected 1 synthesis publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.transcripts", models.EventTranscriptEdited)); got != 1 {
		t.Errorf("expected 1 edit publish on transcripts topic, got %v", got)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.publish(context.Background(), nil, "topic", "bad", "key", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
