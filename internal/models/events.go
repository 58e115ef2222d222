// Package models defines the session events published to Kafka and to
// WebSocket subscribers.
package models

import "time"

// Event types.
const (
	EventTranscriptCompleted = "transcript.completed"
	EventTranscriptEdited    = "transcript.edited"
	EventSpeechSynthesized   = "speech.synthesized"
	EventSessionCleared      = "session.cleared"
	EventModelLoaded         = "model.loaded"
)

// Event is implemented by every payload so publishers can route and key it.
type Event interface {
	Type() string
	Session() string
}

// Header carries the fields common to every event.
type Header struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

func (h Header) Type() string    { return h.EventType }
func (h Header) Session() string { return h.SessionID }

func newHeader(eventType, sessionID string) Header {
	return Header{EventType: eventType, SessionID: sessionID, Timestamp: time.Now().UnixMilli()}
}

// TranscriptCompleted is emitted when a clip has been transcribed.
type TranscriptCompleted struct {
	Header
	Text       string `json:"text"`
	ModelSize  string `json:"modelSize"`
	Backend    string `json:"backend"`
	Source     string `json:"source"`
	Format     string `json:"format"`
	AudioBytes int64  `json:"audioBytes"`
	LatencyMs  int64  `json:"latencyMs"`
}

// NewTranscriptCompleted creates a TranscriptCompleted event.
func NewTranscriptCompleted(sessionID string) TranscriptCompleted {
	return TranscriptCompleted{Header: newHeader(EventTranscriptCompleted, sessionID)}
}

// TranscriptEdited is emitted when the user replaces the transcript.
type TranscriptEdited struct {
	Header
	Text string `json:"text"`
}

// NewTranscriptEdited creates a TranscriptEdited event.
func NewTranscriptEdited(sessionID, text string) TranscriptEdited {
	return TranscriptEdited{Header: newHeader(EventTranscriptEdited, sessionID), Text: text}
}

// SpeechSynthesized is emitted after a successful synthesis.
type SpeechSynthesized struct {
	Header
	Language  string `json:"language"`
	Speed     string `json:"speed"`
	Backend   string `json:"backend"`
	Chars     int    `json:"chars"`
	Bytes     int    `json:"bytes"`
	LatencyMs int64  `json:"latencyMs"`
}

// NewSpeechSynthesized creates a SpeechSynthesized event.
func NewSpeechSynthesized(sessionID string) SpeechSynthesized {
	return SpeechSynthesized{Header: newHeader(EventSpeechSynthesized, sessionID)}
}

// SessionCleared is emitted on explicit clear or teardown.
type SessionCleared struct {
	Header
	Reason       string `json:"reason"`
	RemovedAudio bool   `json:"removedAudio"`
}

// NewSessionCleared creates a SessionCleared event.
func NewSessionCleared(sessionID, reason string, removedAudio bool) SessionCleared {
	return SessionCleared{Header: newHeader(EventSessionCleared, sessionID), Reason: reason, RemovedAudio: removedAudio}
}

// ModelLoaded is emitted when a session loads an STT model or activates a
// heavy TTS backend.
type ModelLoaded struct {
	Header
	Kind    string `json:"kind"` // stt or tts
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Reload  bool   `json:"reload,omitempty"`
}

// NewModelLoaded creates a ModelLoaded event.
func NewModelLoaded(sessionID, kind, model, backend string, reload bool) ModelLoaded {
	return ModelLoaded{Header: newHeader(EventModelLoaded, sessionID), Kind: kind, Model: model, Backend: backend, Reload: reload}
}
