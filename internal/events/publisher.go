// Package events publishes session events to Kafka and to local subscribers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-speech-roundtrip-service/internal/models"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

// Emitter accepts session events.
type Emitter interface {
	Publish(ctx context.Context, event models.Event) error
}

// Publisher publishes session events to two Kafka topics: transcript
// lifecycle events and synthesis events.
type Publisher struct {
	writerTranscripts *kafka.Writer
	writerSyntheses   *kafka.Writer
	principal         string
	topicTranscripts  string
	topicSyntheses    string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTranscripts string
	TopicSyntheses   string
	Principal        string
	Enabled          bool
	Metrics          *metrics.Metrics
}

// New creates a Kafka event publisher. When disabled or without brokers it
// logs events instead of writing them.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: metrics.DefaultMetrics}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTranscripts: cfg.TopicTranscripts,
			topicSyntheses:   cfg.TopicSyntheses,
			metrics:          m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("topicSyntheses", cfg.TopicSyntheses).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscripts: newWriter(cfg.TopicTranscripts),
		writerSyntheses:   newWriter(cfg.TopicSyntheses),
		principal:         cfg.Principal,
		topicTranscripts:  cfg.TopicTranscripts,
		topicSyntheses:    cfg.TopicSyntheses,
		enabled:           true,
		metrics:           m,
	}
}

// Publish routes event to its topic, keyed by session so a session's
// events stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, event models.Event) error {
	if event.Type() == models.EventSpeechSynthesized {
		return p.publish(ctx, p.writerSyntheses, p.topicSyntheses, event.Type(), event.Session(), event)
	}
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, event.Type(), event.Session(), event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcripts writer")
			err = e
		}
	}
	if p.writerSyntheses != nil {
		if e := p.writerSyntheses.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing syntheses writer")
			err = e
		}
	}
	return err
}
