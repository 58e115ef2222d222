package tts

import (
	"context"
	"errors"
	"sync"
)

type fakeBackend struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Synthesize(ctx context.Context, req Request) (Audio, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return Audio{}, f.err
	}
	return Audio{Data: []byte(f.name + ":" + req.Language + ":" + string(req.Speed) + ":" + req.Text)}, nil
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHeavy struct {
	fakeBackend
	loadErr error
	block   chan struct{}
	loads   int
}

func (f *fakeHeavy) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.loadErr
}

var errBoom = errors.New("boom")
