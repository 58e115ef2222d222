// Package session holds per-user state for the round-trip pipeline.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/service/ingest"
	"ai-speech-roundtrip-service/internal/service/stt"
	"ai-speech-roundtrip-service/internal/service/tts"
)

// Speech is the last synthesized clip, kept in memory for download.
type Speech struct {
	Audio     tts.Audio
	Text      string
	Language  string
	Speed     tts.Speed
	CreatedAt time.Time
}

// Session is the state of one user interaction. It owns its STT model
// cache, its heavy TTS slot and at most one source clip.
type Session struct {
	id        string
	createdAt time.Time
	models    *stt.Cache
	heavy     *tts.Slot

	mu         sync.RWMutex
	transcript string
	source     *ingest.Clip
	loaded     map[string]struct{}
	speech     *Speech
	lastSeen   time.Time
}

func newSession(id string, models *stt.Cache, now time.Time) *Session {
	return &Session{
		id:        id,
		createdAt: now,
		models:    models,
		heavy:     tts.NewSlot(),
		loaded:    make(map[string]struct{}),
		lastSeen:  now,
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Models returns the session's STT model cache.
func (s *Session) Models() *stt.Cache { return s.models }

// Heavy returns the session's heavy TTS slot.
func (s *Session) Heavy() *tts.Slot { return s.heavy }

// Transcript returns the current transcript.
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// SetTranscript replaces the current transcript.
func (s *Session) SetTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = text
}

// SourceAudio returns the last ingested clip, or nil.
func (s *Session) SourceAudio() *ingest.Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// SetSourceAudio references clip as the current source, removing the clip
// it replaces.
func (s *Session) SetSourceAudio(clip *ingest.Clip) {
	s.mu.Lock()
	prev := s.source
	s.source = clip
	s.mu.Unlock()

	if prev != nil && prev != clip {
		if err := prev.Remove(); err != nil {
			log.Warn().Err(err).Str("sessionId", s.id).Str("clip", prev.Name).Msg("Failed to remove replaced clip")
		}
	}
}

// DiscardSourceAudio removes clip and clears the reference if it is still
// the current source.
func (s *Session) DiscardSourceAudio(clip *ingest.Clip) error {
	if clip == nil {
		return nil
	}
	s.mu.Lock()
	current := s.source == clip
	if current {
		s.source = nil
	}
	s.mu.Unlock()

	if err := clip.Remove(); err != nil {
		if current {
			s.reattach(clip)
		}
		return err
	}
	return nil
}

// reattach restores clip as the source after a failed removal so a later
// Clear or teardown retries it.
func (s *Session) reattach(clip *ingest.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		s.source = clip
	}
}

// RecordLoadedModel notes that a model identifier is loaded.
func (s *Session) RecordLoadedModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[id] = struct{}{}
}

// LoadedModels returns the recorded model identifiers, sorted.
func (s *Session) LoadedModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastSpeech returns the last synthesized clip, or nil.
func (s *Session) LastSpeech() *Speech {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speech
}

// SetLastSpeech keeps sp for download.
func (s *Session) SetLastSpeech(sp *Speech) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speech = sp
}

// Clear resets the transcript, removes the referenced clip and drops the
// last synthesized clip. Loaded models stay cached. Safe when nothing is
// referenced. Reports whether a clip was removed. A clip that cannot be
// removed stays referenced.
func (s *Session) Clear() (bool, error) {
	s.mu.Lock()
	clip := s.source
	s.source = nil
	s.transcript = ""
	s.speech = nil
	s.mu.Unlock()

	if clip == nil {
		return false, nil
	}
	if err := clip.Remove(); err != nil {
		s.reattach(clip)
		return false, err
	}
	return true, nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) teardown() (bool, error) {
	s.heavy.Deactivate()
	return s.Clear()
}

// AudioInfo describes the source clip without exposing its path.
type AudioInfo struct {
	Name      string        `json:"name"`
	Format    ingest.Format `json:"format"`
	Source    ingest.Source `json:"source"`
	Size      int64         `json:"size"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SpeechInfo describes the last synthesized clip.
type SpeechInfo struct {
	Backend   string    `json:"backend"`
	Language  string    `json:"language"`
	Speed     tts.Speed `json:"speed"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a read-only view of a session. Taking one never loads a model.
type Snapshot struct {
	ID           string         `json:"id"`
	Transcript   string         `json:"transcript"`
	SourceAudio  *AudioInfo     `json:"sourceAudio,omitempty"`
	LoadedModels []string       `json:"loadedModels"`
	STTModels    []string       `json:"sttModels"`
	Heavy        tts.SlotStatus `json:"heavyBackend"`
	LastSpeech   *SpeechInfo    `json:"lastSpeech,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastSeen     time.Time      `json:"lastSeen"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:         s.id,
		Transcript: s.transcript,
		CreatedAt:  s.createdAt,
		LastSeen:   s.lastSeen,
	}
	if c := s.source; c != nil {
		snap.SourceAudio = &AudioInfo{Name: c.Name, Format: c.Format, Source: c.Source, Size: c.Size, CreatedAt: c.CreatedAt}
	}
	if sp := s.speech; sp != nil {
		snap.LastSpeech = &SpeechInfo{
			Backend:   sp.Audio.Backend,
			Language:  sp.Language,
			Speed:     sp.Speed,
			Bytes:     len(sp.Audio.Data),
			CreatedAt: sp.CreatedAt,
		}
	}
	snap.LoadedModels = make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		snap.LoadedModels = append(snap.LoadedModels, id)
	}
	s.mu.RUnlock()

	sort.Strings(snap.LoadedModels)
	snap.STTModels = []string{}
	if s.models != nil {
		for _, size := range s.models.Loaded() {
			snap.STTModels = append(snap.STTModels, size.String())
		}
	}
	snap.Heavy = s.heavy.Status()
	return snap
}
