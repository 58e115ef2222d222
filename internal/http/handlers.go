package http

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"ai-speech-roundtrip-service/internal/apperr"
	"ai-speech-roundtrip-service/internal/schema"
	"ai-speech-roundtrip-service/internal/service/audio"
	"ai-speech-roundtrip-service/internal/service/ingest"
	"ai-speech-roundtrip-service/internal/service/session"
)

// DownloadName is the filename offered for synthesized speech.
const DownloadName = "generated_speech.mp3"

// multipart overhead allowed on top of the clip itself
const formOverhead = 1 << 20

// maxJSONBody caps JSON-only request bodies.
const maxJSONBody = 256 << 10

type api struct {
	sessions  *session.Manager
	pipeline  *audio.Handler
	hub       *Hub
	validator *schema.Validator
	maxUpload int64
}

func (a *api) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (a *api) limitBody(w http.ResponseWriter, r *http.Request) {
	if a.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+formOverhead)
	}
}

func limitJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		next.ServeHTTP(w, r)
	})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func (a *api) languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": a.pipeline.Languages(),
		"default":   a.pipeline.Defaults().Language,
	})
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.sessions.Create()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	err := a.sessions.Delete(chi.URLParam(r, "id"))
	if apperr.KindOf(err) == apperr.KindNotFound {
		writeError(w, r, err)
		return
	}
	// The session is gone even when its clip could not be removed.
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) clear(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	removed, err := a.pipeline.Clear(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removedAudio": removed,
		"session":      s.Snapshot(),
	})
}

// ingest accepts a multipart "file" upload or a raw recording body.
func (a *api) ingest(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.limitBody(w, r)

	var (
		clip *ingest.Clip
		err  error
	)
	if isMultipart(r) {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, r, formError(ferr))
			return
		}
		defer file.Close()
		clip, err = a.pipeline.Ingest(r.Context(), s, header.Filename, header.Header.Get("Content-Type"), file)
	} else {
		data, rerr := io.ReadAll(r.Body)
		if rerr != nil {
			writeError(w, r, bodyError(rerr))
			return
		}
		clip, err = a.pipeline.IngestRecording(r.Context(), s, data)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

// sourceAudio streams the current clip back for playback.
func (a *api) sourceAudio(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	clip := s.SourceAudio()
	if clip == nil {
		writeError(w, r, apperr.Errorf(apperr.KindNotFound, "http.audio", "no source audio"))
		return
	}
	f, err := os.Open(clip.Path)
	if err != nil {
		writeError(w, r, apperr.Errorf(apperr.KindNotFound, "http.audio", "source audio is no longer available"))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", clip.Format.ContentType())
	http.ServeContent(w, r, clip.Name, clip.CreatedAt, f)
}

func (a *api) loadModel(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req schema.ModelRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.validator.Validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	size, err := a.pipeline.LoadModel(r.Context(), s, req.ModelSize, req.Reload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modelSize":    size,
		"reloaded":     req.Reload,
		"loadedModels": s.LoadedModels(),
	})
}

// transcribe transcribes the current clip, or a multipart upload in one step.
func (a *api) transcribe(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.limitBody(w, r)

	var (
		result *audio.Transcription
		err    error
	)
	if isMultipart(r) {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, r, formError(ferr))
			return
		}
		defer file.Close()
		req := schema.TranscribeRequest{ModelSize: r.FormValue("modelSize")}
		if err := a.validator.Validate(&req); err != nil {
			writeError(w, r, err)
			return
		}
		result, err = a.pipeline.TranscribeUpload(r.Context(), s, req.ModelSize, header.Filename, header.Header.Get("Content-Type"), file)
	} else {
		var req schema.TranscribeRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, r, err)
			return
		}
		if err := a.validator.Validate(&req); err != nil {
			writeError(w, r, err)
			return
		}
		result, err = a.pipeline.Transcribe(r.Context(), s, req.ModelSize)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      result.Text,
		"modelSize": result.ModelSize,
		"backend":   result.Backend,
		"latencyMs": result.Latency.Milliseconds(),
	})
}

func (a *api) editTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req schema.TranscriptRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.validator.Validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	text := a.pipeline.EditTranscript(r.Context(), s, *req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// synthesize returns the generated speech as audio/mpeg for playback.
func (a *api) synthesize(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req schema.SpeechRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.validator.Validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	sp, err := a.pipeline.Synthesize(r.Context(), s, audio.SynthesisInput{
		Text:     req.Text,
		Language: req.Language,
		Speed:    req.Speed,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Synthesis-Backend", sp.Audio.Backend)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sp.Audio.Data)
}

// downloadSpeech serves the last synthesized clip as an attachment.
func (a *api) downloadSpeech(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	sp := s.LastSpeech()
	if sp == nil {
		writeError(w, r, apperr.Errorf(apperr.KindNotFound, "http.speech", "no speech generated yet"))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	w.Header().Set("X-Synthesis-Backend", sp.Audio.Backend)
	http.ServeContent(w, r, DownloadName, sp.CreatedAt, bytes.NewReader(sp.Audio.Data))
}

func (a *api) backends(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.pipeline.Backends(s))
}

func (a *api) activateHeavy(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req schema.HeavyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.validator.Validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := a.pipeline.ActivateHeavy(r.Context(), s, req.Backend)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *api) deactivateHeavy(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.pipeline.DeactivateHeavy(s))
}

func (a *api) events(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.hub.Serve(w, r, s.ID())
}

func formError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	if errors.Is(err, http.ErrMissingFile) {
		return apperr.Errorf(apperr.KindUserInput, "http.form", "no audio provided (expected multipart field \"file\")")
	}
	return apperr.Errorf(apperr.KindUserInput, "http.form", "invalid multipart form: %v", err)
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	return apperr.E(apperr.KindIO, "http.body", err)
}
