package stt

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

type entry struct {
	ready chan struct{}
	model Model
	err   error
}

func (e *entry) done() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Cache memoizes loaded models by size. Each session owns one; a model is
// loaded at most once until Reload replaces it.
type Cache struct {
	backend Backend
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[ModelSize]*entry
}

// NewCache creates an empty cache over backend.
func NewCache(backend Backend, m *metrics.Metrics) *Cache {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Cache{
		backend: backend,
		metrics: m,
		entries: make(map[ModelSize]*entry),
	}
}

// Backend returns the backend models are loaded from.
func (c *Cache) Backend() Backend { return c.backend }

// Get returns the model for size, loading it on first use. Concurrent
// callers for the same size share one load. Failed loads are not cached.
func (c *Cache) Get(ctx context.Context, size ModelSize) (Model, error) {
	c.mu.Lock()
	if e, ok := c.entries[size]; ok {
		c.mu.Unlock()
		return c.wait(ctx, e)
	}
	e := &entry{ready: make(chan struct{})}
	c.entries[size] = e
	c.mu.Unlock()

	c.load(ctx, size, e, nil)
	return e.model, e.err
}

// Reload loads a fresh model for size and replaces the cached one. If the
// load fails the previous model stays in place.
func (c *Cache) Reload(ctx context.Context, size ModelSize) (Model, error) {
	c.mu.Lock()
	prev := c.entries[size]
	if prev != nil && !prev.done() {
		c.mu.Unlock()
		return c.wait(ctx, prev)
	}
	e := &entry{ready: make(chan struct{})}
	c.entries[size] = e
	c.mu.Unlock()

	c.load(ctx, size, e, prev)
	return e.model, e.err
}

// Peek returns the cached model for size without loading.
func (c *Cache) Peek(size ModelSize) (Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[size]
	if !ok || !e.done() || e.err != nil {
		return nil, false
	}
	return e.model, true
}

// Loaded lists the sizes with a ready model, smallest first.
func (c *Cache) Loaded() []ModelSize {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sizes []ModelSize
	for _, s := range ModelSizes {
		if e, ok := c.entries[s]; ok && e.done() && e.err == nil {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

func (c *Cache) wait(ctx context.Context, e *entry) (Model, error) {
	select {
	case <-e.ready:
		return e.model, e.err
	case <-ctx.Done():
		return nil, apperr.E(apperr.KindModelLoad, "stt.load", ctx.Err())
	}
}

func (c *Cache) load(ctx context.Context, size ModelSize, e, prev *entry) {
	name := c.backend.Name()
	m, err := c.backend.Load(ctx, size)
	c.metrics.RecordModelLoad(name, string(size), err)

	c.mu.Lock()
	if err != nil {
		e.err = LoadError("stt.load", err)
		if c.entries[size] == e {
			if prev != nil {
				c.entries[size] = prev
			} else {
				delete(c.entries, size)
			}
		}
	} else {
		e.model = m
	}
	c.mu.Unlock()
	close(e.ready)

	if err != nil {
		log.Warn().Err(err).Str("backend", name).Str("size", string(size)).Msg("Model load failed")
		return
	}
	log.Info().Str("backend", name).Str("size", string(size)).Msg("Model loaded")
}
