// Package translate provides the lightweight TTS backend backed by the
// Google Translate speech endpoint.
package translate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/tts"
)

const (
	defaultURL = "https://translate.google.com/translate_tts"
	// MaxChunk is the longest text the endpoint accepts per request.
	MaxChunk  = 100
	userAgent = "Mozilla/5.0 (compatible; ai-speech-roundtrip-service)"
)

var speeds = map[tts.Speed]string{
	tts.SpeedNormal: "1",
	tts.SpeedSlow:   "0.3",
}

// Config holds the endpoint settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Backend implements tts.Backend. Long text is split into chunks and the
// returned MP3 streams are concatenated.
type Backend struct {
	url    string
	client *http.Client
}

// New creates a translate backend.
func New(cfg Config) *Backend {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Backend{url: cfg.URL, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "translate" }

// Synthesize fetches one MP3 stream per chunk.
func (b *Backend) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	chunks := Chunk(req.Text, MaxChunk)
	if len(chunks) == 0 {
		return tts.Audio{}, apperr.Errorf(apperr.KindUserInput, "translate.synthesize", "no text to synthesize")
	}
	speed, ok := speeds[req.Speed]
	if !ok {
		speed = speeds[tts.SpeedNormal]
	}

	var out bytes.Buffer
	for i, chunk := range chunks {
		if err := b.fetch(ctx, &out, chunk, req.Language, speed, i, len(chunks)); err != nil {
			return tts.Audio{}, apperr.E(apperr.KindSynthesis, "translate.synthesize", err)
		}
	}
	return tts.Audio{Data: out.Bytes(), Encoding: tts.EncodingMP3}, nil
}

func (b *Backend) fetch(ctx context.Context, w io.Writer, text, lang, speed string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(text))))
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", speed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chunk %d/%d: status %d: %s", idx+1, total, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("chunk %d/%d: %w", idx+1, total, err)
	}
	if n == 0 {
		return fmt.Errorf("chunk %d/%d: empty response", idx+1, total)
	}
	return nil
}

// Chunk splits text into pieces of at most limit runes, breaking on
// whitespace where possible. Words longer than limit are split.
func Chunk(text string, limit int) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	var (
		chunks []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
		}
	}
	for _, word := range words {
		w := []rune(word)
		for len(w) > limit {
			flush()
			chunks = append(chunks, string(w[:limit]))
			w = w[limit:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	return chunks
}
