package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/stt"
)

// End reasons passed to Options.OnEnd.
const (
	ReasonDeleted  = "deleted"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

// Options configures a Manager.
type Options struct {
	// Backend is the STT backend each session's cache loads from.
	Backend       stt.Backend
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Metrics       *metrics.Metrics
	// OnEnd is called after a session is torn down.
	OnEnd func(id, reason string, removedAudio bool)
}

// Manager owns the live sessions. Sessions are fully isolated: each gets
// its own model cache and heavy slot.
type Manager struct {
	opts Options
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Manager{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *Manager) Create() (*Session, error) {
	s := newSession(uuid.NewString(), stt.NewCache(m.opts.Backend, m.opts.Metrics), m.now())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, apperr.Errorf(apperr.KindInternal, "session.create", "manager is shut down")
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.opts.Metrics.RecordSessionCreated()
	log.Info().Str("sessionId", s.id).Msg("Session created")
	return s, nil
}

// Get returns the session and marks it as active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "session.get", "session %q not found", id)
	}
	s.touch(m.now())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete tears down the session, removing its temp clip.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperr.Errorf(apperr.KindNotFound, "session.delete", "session %q not found", id)
	}
	return m.end(s, ReasonDeleted)
}

// Sweep tears down sessions idle longer than IdleTTL as of now. It returns
// the number expired.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.IdleTTL)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.end(s, ReasonExpired)
	}
	return len(expired)
}

// Run sweeps idle sessions every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if n := m.Sweep(t); n > 0 {
				log.Info().Int("expired", n).Msg("Idle sessions expired")
			}
		}
	}
}

// Close tears down every session and rejects new ones. It returns the
// number of sessions torn down.
func (m *Manager) Close() int {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.end(s, ReasonShutdown)
	}
	return len(all)
}

func (m *Manager) end(s *Session, reason string) error {
	removed, err := s.teardown()
	if err != nil {
		m.opts.Metrics.RecordTempFileFailure("remove")
		log.Warn().Err(err).Str("sessionId", s.id).Msg("Failed to remove session clip")
	}
	m.opts.Metrics.RecordSessionEnded(reason == ReasonExpired)
	log.Info().Str("sessionId", s.id).Str("reason", reason).Bool("removedAudio", removed).Msg("Session ended")

	if m.opts.OnEnd != nil {
		m.opts.OnEnd(s.id, reason, removed)
	}
	return err
}
