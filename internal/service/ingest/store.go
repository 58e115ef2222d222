// Package ingest persists uploaded and recorded audio clips to scoped
// temporary files for downstream transcription.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/observability/metrics"
)

const (
	clipPrefix = "clip-"
	sniffBytes = 512
)

// Source records how a clip entered the service.
type Source string

const (
	SourceUpload    Source = "upload"
	SourceRecording Source = "recording"
)

// Clip is a handle to one ingested audio file. The owner must call Remove.
type Clip struct {
	Path      string    `json:"-"`
	Name      string    `json:"name"`
	Format    Format    `json:"format"`
	Source    Source    `json:"source"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`

	mu      sync.Mutex
	gone    bool
	removed func()
}

// Remove deletes the backing file. It is idempotent and a missing file is
// not an error. A failed removal is retried by the next call.
func (c *Clip) Remove() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.E(apperr.KindIO, "ingest.remove", err)
	}
	c.gone = true
	if c.removed != nil {
		c.removed()
	}
	return nil
}

// Limits bounds what the store accepts.
type Limits struct {
	MaxBytes              int64
	RecordingSampleRateHz int
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:              25 * 1024 * 1024,
		RecordingSampleRateHz: 16000,
	}
}

// Store writes clips into a directory it owns.
type Store struct {
	dir     string
	limits  Limits
	metrics *metrics.Metrics
}

// NewStore creates the directory if needed and returns a store writing into it.
func NewStore(dir string, limits Limits, m *metrics.Metrics) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperr.E(apperr.KindIO, "ingest.new", err)
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Store{dir: dir, limits: limits, metrics: m}, nil
}

// Dir returns the directory clips are written to.
func (s *Store) Dir() string { return s.dir }

// SaveUpload persists an uploaded file. The format is detected from content,
// filename and declared content type, in that order.
func (s *Store) SaveUpload(ctx context.Context, filename, contentType string, r io.Reader) (*Clip, error) {
	br := bufio.NewReaderSize(r, sniffBytes)
	head, _ := br.Peek(sniffBytes)
	if len(head) == 0 {
		return nil, apperr.Errorf(apperr.KindUserInput, "ingest.upload", "no audio provided")
	}

	format, err := DetectFormat(filename, contentType, head)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, format, SourceUpload, br)
}

// SaveRecording persists a microphone buffer. Buffers without a WAV header
// are treated as 16-bit mono PCM and wrapped.
func (s *Store) SaveRecording(ctx context.Context, data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, apperr.Errorf(apperr.KindUserInput, "ingest.recording", "no audio provided")
	}
	if !hasWAVHeader(data) {
		data = wrapPCM(data, s.limits.RecordingSampleRateHz)
	}
	return s.write(ctx, FormatWAV, SourceRecording, bytes.NewReader(data))
}

func (s *Store) write(ctx context.Context, format Format, source Source, r io.Reader) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.E(apperr.KindIO, "ingest.write", err)
	}

	name := clipPrefix + uuid.NewString() + format.Ext()
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		s.metrics.RecordTempFileFailure("create")
		return nil, apperr.E(apperr.KindIO, "ingest.write", err)
	}

	src := r
	if s.limits.MaxBytes > 0 {
		src = io.LimitReader(r, s.limits.MaxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	fail := func(err error) (*Clip, error) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove partial clip")
		}
		return nil, err
	}

	switch {
	case copyErr != nil:
		s.metrics.RecordTempFileFailure("write")
		return fail(apperr.E(apperr.KindIO, "ingest.write", copyErr))
	case closeErr != nil:
		s.metrics.RecordTempFileFailure("write")
		return fail(apperr.E(apperr.KindIO, "ingest.write", closeErr))
	case s.limits.MaxBytes > 0 && n > s.limits.MaxBytes:
		return fail(apperr.Errorf(apperr.KindUserInput, "ingest.write",
			"audio exceeds %d bytes", s.limits.MaxBytes))
	}

	s.metrics.RecordUpload(string(source), string(format), n)
	log.Debug().
		Str("clip", name).
		Str("format", string(format)).
		Str("source", string(source)).
		Int64("bytes", n).
		Msg("Clip ingested")

	return &Clip{
		Path:      path,
		Name:      name,
		Format:    format,
		Source:    source,
		Size:      n,
		CreatedAt: time.Now().UTC(),
		removed:   s.metrics.RecordTempFileRemoved,
	}, nil
}

// Purge removes clips left behind by a previous process. It returns the
// number of files removed.
func (s *Store) Purge() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, clipPrefix+"*"))
	if err != nil {
		return 0, apperr.E(apperr.KindIO, "ingest.purge", err)
	}
	removed := 0
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, apperr.E(apperr.KindIO, "ingest.purge", errors.Join(errs...))
	}
	return removed, nil
}
