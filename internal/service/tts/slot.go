package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai-speech-roundtrip-service/internal/apperr"
)

// State is the availability of the heavy backend in a slot.
type State int

const (
	// StateUnavailable - nothing loaded, or the last load or synthesis failed.
	StateUnavailable State = iota
	// StateLoading - Load is in flight.
	StateLoading
	// StateReady - loaded and usable.
	StateReady
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnavailable:
		return "UNAVAILABLE"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid slot transitions.
var (
	ErrSlotBusy     = errors.New("heavy backend is already loading")
	ErrSlotReplaced = errors.New("heavy backend was replaced while loading")
)

// Slot holds at most one heavy backend for a session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	UNAVAILABLE → LOADING → READY
//	     ↑           │        │
//	     └───────────┴────────┘  load failure, synthesis failure, Deactivate
//
// Activating a different backend replaces the current one, so at most one
// heavy backend is ever LOADING or READY.
type Slot struct {
	mu      sync.RWMutex
	backend HeavyBackend
	state   State
	lastErr error
	gen     uint64
}

// NewSlot creates an empty slot in UNAVAILABLE state.
func NewSlot() *Slot {
	return &Slot{state: StateUnavailable}
}

// State returns the current state.
func (s *Slot) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready returns the heavy backend if it is READY.
func (s *Slot) Ready() (HeavyBackend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, false
	}
	return s.backend, true
}

// Activate loads b into the slot. Reactivating the READY backend is a
// no-op. Load failures leave the slot UNAVAILABLE and are ModelLoad errors.
func (s *Slot) Activate(ctx context.Context, b HeavyBackend) error {
	s.mu.Lock()
	if s.state == StateReady && s.backend == b {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateLoading {
		s.mu.Unlock()
		return apperr.E(apperr.KindUserInput, "tts.activate", ErrSlotBusy)
	}
	s.gen++
	gen := s.gen
	s.backend = b
	s.state = StateLoading
	s.lastErr = nil
	s.mu.Unlock()

	err := b.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return apperr.E(apperr.KindModelLoad, "tts.activate", ErrSlotReplaced)
	}
	if err != nil {
		s.state = StateUnavailable
		s.lastErr = err
		return apperr.E(apperr.KindModelLoad, "tts.activate", err)
	}
	s.state = StateReady
	return nil
}

// MarkFailed drops b to UNAVAILABLE if it still occupies the slot.
// Returns true if the state changed.
func (s *Slot) MarkFailed(b HeavyBackend, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != b || s.state != StateReady {
		return false
	}
	s.state = StateUnavailable
	s.lastErr = err
	return true
}

// Deactivate empties the slot. Idempotent.
func (s *Slot) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.backend = nil
	s.state = StateUnavailable
	s.lastErr = nil
}

// SlotStatus is a read-only view of a slot.
type SlotStatus struct {
	Backend string `json:"backend,omitempty"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// Status returns a snapshot of the slot.
func (s *Slot) Status() SlotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SlotStatus{State: s.state.String()}
	if s.backend != nil {
		st.Backend = s.backend.Name()
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}
