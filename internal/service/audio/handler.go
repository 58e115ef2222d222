// Package audio coordinates one user action at a time across ingest,
// transcription, synthesis and session state.
package audio

import (
	"context"
	"io"
	"strings"
	"time"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/events"
	"ai-speech-roundtrip-service/internal/models"
	"ai-speech-roundtrip-service/internal/observability/logging"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/ingest"
	"ai-speech-roundtrip-service/internal/service/language"
	"ai-speech-roundtrip-service/internal/service/session"
	"ai-speech-roundtrip-service/internal/service/stt"
	"ai-speech-roundtrip-service/internal/service/tts"
)

// ClearReason is the SessionCleared reason for an explicit user clear.
const ClearReason = "clear"

// Defaults applies when a request leaves a parameter unset.
type Defaults struct {
	ModelSize stt.ModelSize
	Language  string // label or wire code
}

// DefaultDefaults returns the base model and English.
func DefaultDefaults() Defaults {
	return Defaults{
		ModelSize: stt.SizeBase,
		Language:  "English",
	}
}

// Handler runs explicit per-action operations against a session. It holds no
// session state itself; every call names the session it acts on.
type Handler struct {
	store    *ingest.Store
	selector *tts.Selector
	emitter  events.Emitter
	metrics  *metrics.Metrics
	defaults Defaults
}

// NewHandler creates a handler with the default parameters.
func NewHandler(store *ingest.Store, selector *tts.Selector, emitter events.Emitter, m *metrics.Metrics) *Handler {
	return NewHandlerWithDefaults(store, selector, emitter, m, DefaultDefaults())
}

// NewHandlerWithDefaults creates a handler with custom default parameters.
func NewHandlerWithDefaults(store *ingest.Store, selector *tts.Selector, emitter events.Emitter, m *metrics.Metrics, d Defaults) *Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if d.ModelSize == "" {
		d.ModelSize = stt.SizeBase
	}
	if d.Language == "" {
		d.Language = "English"
	}
	return &Handler{
		store:    store,
		selector: selector,
		emitter:  emitter,
		metrics:  m,
		defaults: d,
	}
}

// Defaults returns the parameters used when a request omits them.
func (h *Handler) Defaults() Defaults { return h.defaults }

// Ingest stores an uploaded file as the session's source clip, replacing and
// removing any previous one.
func (h *Handler) Ingest(ctx context.Context, s *session.Session, filename, contentType string, r io.Reader) (*ingest.Clip, error) {
	clip, err := h.store.SaveUpload(ctx, filename, contentType, r)
	if err != nil {
		return nil, err
	}
	s.SetSourceAudio(clip)
	return clip, nil
}

// IngestRecording stores a microphone buffer as the session's source clip.
func (h *Handler) IngestRecording(ctx context.Context, s *session.Session, data []byte) (*ingest.Clip, error) {
	clip, err := h.store.SaveRecording(ctx, data)
	if err != nil {
		return nil, err
	}
	s.SetSourceAudio(clip)
	return clip, nil
}

// LoadModel loads the STT model of the named size into the session cache.
// Without reload a cached model is returned as is; with reload it is
// replaced. An empty size selects the default.
func (h *Handler) LoadModel(ctx context.Context, s *session.Session, size string, reload bool) (stt.ModelSize, error) {
	ms, err := h.modelSize(size)
	if err != nil {
		return "", err
	}

	_, cached := s.Models().Peek(ms)
	if reload {
		_, err = s.Models().Reload(ctx, ms)
	} else {
		_, err = s.Models().Get(ctx, ms)
	}
	if err != nil {
		return "", err
	}

	s.RecordLoadedModel("stt:" + ms.String())
	if !cached || reload {
		h.emit(ctx, models.NewModelLoaded(s.ID(), "stt", ms.String(), s.Models().Backend().Name(), reload))
	}
	return ms, nil
}

// Transcription is the result of a successful Transcribe.
type Transcription struct {
	Text      string        `json:"text"`
	ModelSize stt.ModelSize `json:"modelSize"`
	Backend   string        `json:"backend"`
	Clip      *ingest.Clip  `json:"clip"`
	Latency   time.Duration `json:"-"`
}

// Transcribe decodes the session's source clip and makes the result the
// current transcript. A clip that fails to decode is removed; a model that
// fails to load leaves the clip in place for a retry.
func (h *Handler) Transcribe(ctx context.Context, s *session.Session, size string) (*Transcription, error) {
	clip := s.SourceAudio()
	if clip == nil {
		return nil, apperr.Errorf(apperr.KindUserInput, "audio.transcribe", "no audio to transcribe")
	}
	return h.transcribe(ctx, s, clip, size)
}

// TranscribeUpload ingests an upload and transcribes it in one step. The
// uploaded clip is removed if any later step fails.
func (h *Handler) TranscribeUpload(ctx context.Context, s *session.Session, size, filename, contentType string, r io.Reader) (*Transcription, error) {
	if _, err := h.modelSize(size); err != nil {
		return nil, err
	}
	clip, err := h.Ingest(ctx, s, filename, contentType, r)
	if err != nil {
		return nil, err
	}
	t, err := h.transcribe(ctx, s, clip, size)
	if err != nil {
		h.discard(s, clip)
		return nil, err
	}
	return t, nil
}

func (h *Handler) transcribe(ctx context.Context, s *session.Session, clip *ingest.Clip, size string) (*Transcription, error) {
	logger := logging.WithSession("audio", s.ID())

	ms, err := h.modelSize(size)
	if err != nil {
		return nil, err
	}
	model, err := s.Models().Get(ctx, ms)
	if err != nil {
		return nil, err
	}
	s.RecordLoadedModel("stt:" + ms.String())

	backend := s.Models().Backend().Name()
	start := time.Now()
	text, err := model.Transcribe(ctx, clip.Path)
	latency := time.Since(start)
	if err == nil && strings.TrimSpace(text) == "" {
		err = apperr.Errorf(apperr.KindTranscription, "audio.transcribe", "no speech recognized")
	}
	if err != nil && ctx.Err() != nil {
		// Canceled by the caller: the clip is still good.
		err = apperr.E(apperr.KindInternal, "audio.transcribe", ctx.Err())
		h.metrics.RecordTranscription(backend, ms.String(), err, latency.Seconds(), apperr.KindInternal.String())
		logger.Info().Err(err).Str("clip", clip.Name).Msg("Transcription canceled")
		return nil, err
	}
	if err != nil {
		err = stt.TranscriptionError("audio.transcribe", err)
		h.metrics.RecordTranscription(backend, ms.String(), err, latency.Seconds(), apperr.KindOf(err).String())
		logger.Warn().Err(err).Str("clip", clip.Name).Str("size", ms.String()).Msg("Transcription failed")
		if apperr.KindOf(err) == apperr.KindTranscription {
			h.discard(s, clip)
		}
		return nil, err
	}
	h.metrics.RecordTranscription(backend, ms.String(), nil, latency.Seconds(), "")

	text = strings.TrimSpace(text)
	s.SetTranscript(text)
	logger.Info().
		Str("clip", clip.Name).
		Str("size", ms.String()).
		Str("backend", backend).
		Dur("latency", latency).
		Int("chars", len(text)).
		Msg("Transcript completed")

	ev := models.NewTranscriptCompleted(s.ID())
	ev.Text = text
	ev.ModelSize = ms.String()
	ev.Backend = backend
	ev.Source = string(clip.Source)
	ev.Format = string(clip.Format)
	ev.AudioBytes = clip.Size
	ev.LatencyMs = latency.Milliseconds()
	h.emit(ctx, ev)

	return &Transcription{Text: text, ModelSize: ms, Backend: backend, Clip: clip, Latency: latency}, nil
}

// EditTranscript replaces the current transcript with user text.
func (h *Handler) EditTranscript(ctx context.Context, s *session.Session, text string) string {
	s.SetTranscript(text)
	h.emit(ctx, models.NewTranscriptEdited(s.ID(), text))
	return text
}

// SynthesisInput is one speech request. A nil Text synthesizes the current
// transcript.
type SynthesisInput struct {
	Text     *string
	Language string // label or wire code; empty selects the default
	Speed    string
}

// Synthesize converts text to speech and keeps the clip as the session's
// last speech for download. The transcript is never modified.
func (h *Handler) Synthesize(ctx context.Context, s *session.Session, in SynthesisInput) (*session.Speech, error) {
	text := s.Transcript()
	if in.Text != nil {
		text = *in.Text
	}

	langName := in.Language
	if strings.TrimSpace(langName) == "" {
		langName = h.defaults.Language
	}
	lang, err := language.Lookup(langName)
	if err != nil {
		return nil, err
	}
	speed, err := tts.ParseSpeed(in.Speed)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	audio, err := h.selector.Synthesize(ctx, s.Heavy(), tts.Request{Text: text, Language: lang.Code, Speed: speed})
	latency := time.Since(start)
	if err != nil {
		logger := logging.WithSession("audio", s.ID())
		logger.Warn().Err(err).Str("language", lang.Code).Msg("Synthesis failed")
		return nil, err
	}

	sp := &session.Speech{
		Audio:     audio,
		Text:      strings.TrimSpace(text),
		Language:  lang.Code,
		Speed:     speed,
		CreatedAt: time.Now().UTC(),
	}
	s.SetLastSpeech(sp)

	ev := models.NewSpeechSynthesized(s.ID())
	ev.Language = lang.Code
	ev.Speed = string(speed)
	ev.Backend = audio.Backend
	ev.Chars = len([]rune(sp.Text))
	ev.Bytes = len(audio.Data)
	ev.LatencyMs = latency.Milliseconds()
	h.emit(ctx, ev)

	return sp, nil
}

// ActivateHeavy loads the named heavy backend into the session's slot.
func (h *Handler) ActivateHeavy(ctx context.Context, s *session.Session, name string) (tts.SlotStatus, error) {
	backend, err := h.selector.Heavy(name)
	if err != nil {
		return tts.SlotStatus{}, err
	}
	if err := s.Heavy().Activate(ctx, backend); err != nil {
		return s.Heavy().Status(), err
	}
	s.RecordLoadedModel("tts:" + backend.Name())
	h.emit(ctx, models.NewModelLoaded(s.ID(), "tts", backend.Name(), backend.Name(), false))
	return s.Heavy().Status(), nil
}

// DeactivateHeavy releases the session's heavy backend.
func (h *Handler) DeactivateHeavy(s *session.Session) tts.SlotStatus {
	s.Heavy().Deactivate()
	return s.Heavy().Status()
}

// Clear resets the session's transcript and removes its clip. It reports
// whether a clip was removed.
func (h *Handler) Clear(ctx context.Context, s *session.Session) (bool, error) {
	removed, err := s.Clear()
	if err != nil {
		h.metrics.RecordTempFileFailure("remove")
		return removed, err
	}
	h.metrics.RecordSessionCleared()
	h.emit(ctx, models.NewSessionCleared(s.ID(), ClearReason, removed))
	return removed, nil
}

// Languages returns the selectable synthesis languages.
func (h *Handler) Languages() []language.Language {
	return language.All()
}

// Backends describes the transcription and synthesis backends visible to a
// session.
type Backends struct {
	STT         string         `json:"stt"`
	STTModels   []string       `json:"sttModels"`
	ModelSizes  []string       `json:"modelSizes"`
	Strategy    string         `json:"strategy"`
	Lightweight []string       `json:"lightweight"`
	Heavy       []string       `json:"heavy"`
	HeavySlot   tts.SlotStatus `json:"heavySlot"`
}

// Backends reports backend availability without loading anything.
func (h *Handler) Backends(s *session.Session) Backends {
	b := Backends{
		STT:         s.Models().Backend().Name(),
		STTModels:   []string{},
		Strategy:    h.selector.Strategy().Name(),
		Lightweight: h.selector.Lightweight(),
		Heavy:       h.selector.HeavyNames(),
		HeavySlot:   s.Heavy().Status(),
	}
	for _, size := range s.Models().Loaded() {
		b.STTModels = append(b.STTModels, size.String())
	}
	for _, size := range stt.ModelSizes {
		b.ModelSizes = append(b.ModelSizes, size.String())
	}
	return b
}

func (h *Handler) modelSize(size string) (stt.ModelSize, error) {
	if strings.TrimSpace(size) == "" {
		return h.defaults.ModelSize, nil
	}
	return stt.ParseModelSize(size)
}

func (h *Handler) discard(s *session.Session, clip *ingest.Clip) {
	if err := s.DiscardSourceAudio(clip); err != nil {
		h.metrics.RecordTempFileFailure("remove")
		logger := logging.WithSession("audio", s.ID())
		logger.Warn().Err(err).Str("clip", clip.Name).Msg("Failed to remove clip")
	}
}

// emit publishes ev. Publish failures are logged and never fail the action.
func (h *Handler) emit(ctx context.Context, ev models.Event) {
	if h.emitter == nil {
		return
	}
	if err := h.emitter.Publish(ctx, ev); err != nil {
		logger := logging.WithSession("audio", ev.Session())
		logger.Warn().Err(err).Str("eventType", ev.Type()).Msg("Failed to publish event")
	}
}
