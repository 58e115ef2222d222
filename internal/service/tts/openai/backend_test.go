package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/service/tts"
)

type speechBody struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func speechServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		var body speechBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.ResponseFormat != "mp3" {
			t.Errorf("expected mp3 response format, got %q", body.ResponseFormat)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		fmt.Fprintf(w, "ID3|%s|%s|%.2f|%s", body.Model, body.Voice, body.Speed, body.Input)
	}))
}

func TestBackend_Synthesize(t *testing.T) {
	srv := speechServer(t)
	defer srv.Close()

	b := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if b.Name() != "openai" {
		t.Errorf("expected name 'openai', got %s", b.Name())
	}

	audio, err := b.Synthesize(context.Background(), tts.Request{Text: "hello world", Language: "en", Speed: tts.SpeedNormal})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if got := string(audio.Data); got != "ID3|tts-1|alloy|1.00|hello world" {
		t.Errorf("unexpected audio %q", got)
	}
}

func TestBackend_SlowDiffersFromNormal(t *testing.T) {
	srv := speechServer(t)
	defer srv.Close()

	b := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	ctx := context.Background()
	normal, _ := b.Synthesize(ctx, tts.Request{Text: "hello", Language: "en", Speed: tts.SpeedNormal})
	slow, err := b.Synthesize(ctx, tts.Request{Text: "hello", Language: "en", Speed: tts.SpeedSlow})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if bytes.Equal(normal.Data, slow.Data) {
		t.Error("expected slow and normal to produce different audio")
	}
}

func TestBackend_NoKey(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), tts.Request{Text: "hi", Language: "en"})
	if !errors.Is(err, apperr.ErrSynthesis) {
		t.Errorf("expected synthesis error, got %v", err)
	}
}

func TestBackend_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}).Synthesize(context.Background(), tts.Request{Text: "hi", Language: "en"})
	if !errors.Is(err, apperr.ErrSynthesis) {
		t.Errorf("expected synthesis error, got %v", err)
	}
}
