package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-speech-roundtrip-service/internal/apperr"
)

func TestSlot_InitialState(t *testing.T) {
	s := NewSlot()

	if s.State() != StateUnavailable {
		t.Errorf("expected StateUnavailable, got %v", s.State())
	}
	if _, ok := s.Ready(); ok {
		t.Error("expected empty slot not to be ready")
	}
	if st := s.Status(); st.Backend != "" || st.State != "UNAVAILABLE" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSlot_ActivateTransitionsToReady(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}}

	if err := s.Activate(context.Background(), h); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected StateReady, got %v", s.State())
	}
	got, ok := s.Ready()
	if !ok || got != h {
		t.Error("expected Ready to return the activated backend")
	}
}

func TestSlot_ActivateIdempotent(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}}

	s.Activate(context.Background(), h)
	s.Activate(context.Background(), h)

	if h.loads != 1 {
		t.Errorf("expected 1 load for repeated activation, got %d", h.loads)
	}
}

func TestSlot_LoadingState(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}, block: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- s.Activate(context.Background(), h) }()

	deadline := time.Now().Add(time.Second)
	for s.State() != StateLoading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateLoading {
		t.Fatalf("expected StateLoading, got %v", s.State())
	}
	if _, ok := s.Ready(); ok {
		t.Error("loading backend must not be offered")
	}

	other := &fakeHeavy{fakeBackend: fakeBackend{name: "other"}}
	if err := s.Activate(context.Background(), other); !errors.Is(err, ErrSlotBusy) {
		t.Errorf("expected ErrSlotBusy while loading, got %v", err)
	}

	close(h.block)
	if err := <-done; err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected StateReady, got %v", s.State())
	}
}

func TestSlot_LoadFailure(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}, loadErr: errBoom}

	err := s.Activate(context.Background(), h)
	if !errors.Is(err, apperr.ErrModelLoad) {
		t.Errorf("expected model load error, got %v", err)
	}
	if s.State() != StateUnavailable {
		t.Errorf("expected StateUnavailable, got %v", s.State())
	}
	if st := s.Status(); st.Backend != "clone" || st.Error == "" {
		t.Errorf("expected status to report failed backend, got %+v", st)
	}
}

func TestSlot_ActivateReplaces(t *testing.T) {
	s := NewSlot()
	a := &fakeHeavy{fakeBackend: fakeBackend{name: "a"}}
	b := &fakeHeavy{fakeBackend: fakeBackend{name: "b"}}

	s.Activate(context.Background(), a)
	s.Activate(context.Background(), b)

	got, ok := s.Ready()
	if !ok || got != b {
		t.Error("expected second activation to replace the first")
	}
	if s.MarkFailed(a, errBoom) {
		t.Error("MarkFailed for a replaced backend should be a no-op")
	}
}

func TestSlot_MarkFailed(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}}
	s.Activate(context.Background(), h)

	if !s.MarkFailed(h, errBoom) {
		t.Error("expected MarkFailed to change state")
	}
	if s.State() != StateUnavailable {
		t.Errorf("expected StateUnavailable, got %v", s.State())
	}
	if s.MarkFailed(h, errBoom) {
		t.Error("second MarkFailed should be a no-op")
	}

	// Reactivation after failure loads again.
	if err := s.Activate(context.Background(), h); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if h.loads != 2 {
		t.Errorf("expected 2 loads, got %d", h.loads)
	}
}

func TestSlot_DeactivateDuringLoad(t *testing.T) {
	s := NewSlot()
	h := &fakeHeavy{fakeBackend: fakeBackend{name: "clone"}, block: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- s.Activate(context.Background(), h) }()
	for s.State() != StateLoading {
		time.Sleep(time.Millisecond)
	}
	s.Deactivate()
	close(h.block)

	if err := <-done; !errors.Is(err, ErrSlotReplaced) {
		t.Errorf("expected ErrSlotReplaced, got %v", err)
	}
	if s.State() != StateUnavailable {
		t.Errorf("expected StateUnavailable, got %v", s.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnavailable, "UNAVAILABLE"},
		{StateLoading, "LOADING"},
		{StateReady, "READY"},
		{State(9), "UNKNOWN(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}
