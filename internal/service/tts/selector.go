package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

// Options configures a Selector.
type Options struct {
	Strategy Strategy
	MaxChars int // 0 means unlimited
	Metrics  *metrics.Metrics
}

// Selector synthesizes speech by trying backends in strategy order.
// It holds no per-session state; the heavy backend lives in the caller's
// Slot.
type Selector struct {
	light    []Backend
	heavy    map[string]HeavyBackend
	strategy Strategy
	maxChars int
	metrics  *metrics.Metrics
}

// NewSelector creates a selector over the lightweight backends light and
// the heavy backends sessions may activate.
func NewSelector(light []Backend, heavy []HeavyBackend, opts Options) *Selector {
	if opts.Strategy == nil {
		opts.Strategy = PreferHeavy{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	hm := make(map[string]HeavyBackend, len(heavy))
	for _, h := range heavy {
		hm[strings.ToLower(h.Name())] = h
	}
	return &Selector{
		light:    light,
		heavy:    hm,
		strategy: opts.Strategy,
		maxChars: opts.MaxChars,
		metrics:  opts.Metrics,
	}
}

// Strategy returns the ordering strategy.
func (s *Selector) Strategy() Strategy { return s.strategy }

// Lightweight returns the names of the always-ready backends.
func (s *Selector) Lightweight() []string {
	names := make([]string, len(s.light))
	for i, b := range s.light {
		names[i] = b.Name()
	}
	return names
}

// HeavyNames returns the names of the heavy backends sessions may activate.
func (s *Selector) HeavyNames() []string {
	names := make([]string, 0, len(s.heavy))
	for _, h := range s.heavy {
		names = append(names, h.Name())
	}
	return names
}

// Heavy looks up a heavy backend by name.
func (s *Selector) Heavy(name string) (HeavyBackend, error) {
	h, ok := s.heavy[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperr.Errorf(apperr.KindUserInput, "tts.heavy", "unknown heavy backend %q", name)
	}
	return h, nil
}

// Synthesize validates req and returns audio from the first backend that
// succeeds. Empty text is rejected before any backend is called. A failing
// heavy backend is marked UNAVAILABLE in slot and the next candidate is
// tried.
func (s *Selector) Synthesize(ctx context.Context, slot *Slot, req Request) (Audio, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return Audio{}, apperr.Errorf(apperr.KindUserInput, "tts.synthesize", "no text to synthesize")
	}
	if s.maxChars > 0 && len([]rune(req.Text)) > s.maxChars {
		return Audio{}, apperr.Errorf(apperr.KindUserInput, "tts.synthesize", "text exceeds %d characters", s.maxChars)
	}
	if req.Language == "" {
		return Audio{}, apperr.Errorf(apperr.KindUserInput, "tts.synthesize", "language is required")
	}
	if req.Speed == "" {
		req.Speed = SpeedNormal
	}

	var heavy HeavyBackend
	if slot != nil {
		heavy, _ = slot.Ready()
	}
	candidates := s.strategy.Order(heavy, s.light)
	if len(candidates) == 0 {
		return Audio{}, apperr.Errorf(apperr.KindSynthesis, "tts.synthesize", "no synthesis backend available")
	}

	var errs []error
	for i, b := range candidates {
		start := time.Now()
		audio, err := b.Synthesize(ctx, req)
		if err == nil && len(audio.Data) == 0 {
			err = errors.New("empty audio")
		}
		s.metrics.RecordSynthesis(b.Name(), err, time.Since(start).Seconds(), len(audio.Data))

		if err != nil {
			log.Warn().Err(err).Str("backend", b.Name()).Msg("Synthesis backend failed")
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			if heavy != nil && b == Backend(heavy) {
				slot.MarkFailed(heavy, err)
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if i > 0 {
			s.metrics.RecordFallback()
		}
		audio.Backend = b.Name()
		if audio.Encoding == "" {
			audio.Encoding = EncodingMP3
		}
		return audio, nil
	}

	return Audio{}, apperr.E(apperr.KindSynthesis, "tts.synthesize", errors.Join(errs...))
}
