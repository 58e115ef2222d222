package http

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ai-speech-roundtrip-service/internal/events"
	"ai-speech-roundtrip-service/internal/models"
	"ai-speech-roundtrip-service/internal/observability/metrics"
	"ai-speech-roundtrip-service/internal/service/audio"
	"ai-speech-roundtrip-service/internal/service/ingest"
	"ai-speech-roundtrip-service/internal/service/session"
	"ai-speech-roundtrip-service/internal/service/stt/mock"
	"ai-speech-roundtrip-service/internal/service/tts"
	"ai-speech-roundtrip-service/internal/service/tts/translate"
)

type testEnv struct {
	srv      *httptest.Server
	sessions *session.Manager
	backend  *mock.Backend
	metrics  *metrics.Metrics
	fanout   *events.Fanout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ttsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3|" + q.Get("tl") + "|" + q.Get("ttsspeed") + "|" + q.Get("q")))
	}))
	t.Cleanup(ttsSrv.Close)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	store, err := ingest.NewStore(t.TempDir(), ingest.Limits{MaxBytes: 64 * 1024, RecordingSampleRateHz: 16000}, m)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	backend := mock.New("")
	fanout := events.NewFanout(nil)
	sessions := session.NewManager(session.Options{
		Backend: backend,
		Metrics: m,
		OnEnd:   func(id, reason string, removed bool) { fanout.CloseSession(id) },
	})
	selector := tts.NewSelector([]tts.Backend{translate.New(translate.Config{URL: ttsSrv.URL})}, nil, tts.Options{MaxChars: 200, Metrics: m})

	router := NewRouter(Options{
		Sessions:       sessions,
		Pipeline:       audio.NewHandler(store, selector, fanout, m),
		Hub:            NewHub(fanout, nil),
		Metrics:        m,
		MaxUploadBytes: 64 * 1024,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, sessions: sessions, backend: backend, metrics: m, fanout: fanout}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	return e.do(t, method, path, "application/json", strings.NewReader(body))
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return snap.ID
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

func errorKind(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[errorBody](t, resp).Error.Kind
}

func helloWAV() []byte {
	pcm := make([]byte, 1600)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		if resp := env.do(t, http.MethodGet, path, "", nil); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRouter_ReadinessFails(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{
		Ready:   func(ctx context.Context) bool { return false },
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/readiness")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRouter_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := "/v1/sessions/" + id

	body, ct := multipartBody(t, "hello.wav", helloWAV(), nil)
	if resp := env.do(t, http.MethodPost, base+"/audio", ct, body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, base+"/audio", "", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Errorf("playback: expected 200 audio/wav, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = env.doJSON(t, http.MethodPost, base+"/transcribe", `{"modelSize":"base"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transcribe: expected 200, got %d", resp.StatusCode)
	}
	if got := decode[map[string]any](t, resp)["text"]; got != "hello world" {
		t.Errorf("expected transcript 'hello world', got %v", got)
	}

	resp = env.doJSON(t, http.MethodPost, base+"/speech", `{"language":"en","speed":"normal"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("speech: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Errorf("expected audio/mpeg, got %s", resp.Header.Get("Content-Type"))
	}
	audioBytes, _ := io.ReadAll(resp.Body)
	if len(audioBytes) == 0 {
		t.Fatal("expected non-empty mp3")
	}

	resp = env.do(t, http.MethodGet, base+"/speech", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="generated_speech.mp3"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	downloaded, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(downloaded, audioBytes) {
		t.Error("expected download to match the generated speech")
	}

	resp = env.do(t, http.MethodPost, base+"/clear", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", resp.StatusCode)
	}
	cleared := decode[struct {
		RemovedAudio bool             `json:"removedAudio"`
		Session      session.Snapshot `json:"session"`
	}](t, resp)
	if !cleared.RemovedAudio || cleared.Session.Transcript != "" || cleared.Session.SourceAudio != nil {
		t.Errorf("expected cleared session, got %+v", cleared)
	}
}

func TestRouter_UploadAndTranscribe(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	body, ct := multipartBody(t, "clip.wav", helloWAV(), map[string]string{"modelSize": "tiny"})
	resp := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/transcribe", ct, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decode[map[string]any](t, resp)
	if got["text"] != "hello world" || got["modelSize"] != "tiny" {
		t.Errorf("unexpected result %v", got)
	}
}

func TestRouter_RecordingBody(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	resp := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/audio", "application/octet-stream", bytes.NewReader(make([]byte, 640)))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	clip := decode[map[string]any](t, resp)
	if clip["format"] != "wav" || clip["source"] != "recording" {
		t.Errorf("unexpected clip %v", clip)
	}
}

func TestRouter_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := "/v1/sessions/" + id

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/nope", "", http.StatusNotFound, "not_found"},
		{"bad model size", http.MethodPost, base + "/models", `{"modelSize":"large"}`, http.StatusBadRequest, "user_input_error"},
		{"bad json", http.MethodPost, base + "/models", `{`, http.StatusBadRequest, "user_input_error"},
		{"unknown field", http.MethodPost, base + "/models", `{"size":"tiny"}`, http.StatusBadRequest, "user_input_error"},
		{"transcribe without audio", http.MethodPost, base + "/transcribe", ``, http.StatusBadRequest, "user_input_error"},
		{"empty speech", http.MethodPost, base + "/speech", `{"language":"en"}`, http.StatusBadRequest, "user_input_error"},
		{"bad speed", http.MethodPost, base + "/speech", `{"text":"hi","speed":"fast"}`, http.StatusBadRequest, "user_input_error"},
		{"bad language", http.MethodPost, base + "/speech", `{"text":"hi","language":"Klingon"}`, http.StatusBadRequest, "user_input_error"},
		{"no speech yet", http.MethodGet, base + "/speech", ``, http.StatusNotFound, "not_found"},
		{"no source audio", http.MethodGet, base + "/audio", ``, http.StatusNotFound, "not_found"},
		{"missing transcript text", http.MethodPut, base + "/transcript", `{}`, http.StatusBadRequest, "user_input_error"},
		{"unknown heavy", http.MethodPost, base + "/backends/heavy", `{"backend":"zonos"}`, http.StatusBadRequest, "user_input_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.doJSON(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if kind := errorKind(t, resp); kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, kind)
			}
		})
	}
}

func TestRouter_UnsupportedUpload(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	body, ct := multipartBody(t, "notes.txt", []byte("plain text, not audio"), nil)
	resp := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/audio", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRouter_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	big := append(helloWAV(), make([]byte, 128*1024)...)
	body, ct := multipartBody(t, "big.wav", big, nil)
	resp := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/audio", ct, body)
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 400 or 413, got %d", resp.StatusCode)
	}
	if s, _ := env.sessions.Get(id); s.SourceAudio() != nil {
		t.Error("expected no clip referenced")
	}
}

func TestRouter_JSONBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	huge := `{"text":"` + strings.Repeat("a", 300*1024) + `"}`

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/transcript"},
		{http.MethodPost, "/speech"},
		{http.MethodPost, "/models"},
		{http.MethodPost, "/backends/heavy"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := env.doJSON(t, tt.method, "/v1/sessions/"+id+tt.path, huge)
			if resp.StatusCode != http.StatusRequestEntityTooLarge {
				t.Errorf("expected 413, got %d", resp.StatusCode)
			}
		})
	}
	if s, _ := env.sessions.Get(id); s.Transcript() != "" {
		t.Error("expected transcript unchanged")
	}
}

func TestRouter_TranscriptionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.TranscribeErr = io.ErrUnexpectedEOF
	id := env.createSession(t)

	body, ct := multipartBody(t, "a.wav", helloWAV(), nil)
	resp := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/transcribe", ct, body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != "transcription_error" {
		t.Errorf("expected transcription_error, got %s", kind)
	}

	// Session stays usable.
	if resp := env.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected session to remain, got %d", resp.StatusCode)
	}
}

func TestRouter_ModelLoadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.LoadErr = io.ErrUnexpectedEOF
	id := env.createSession(t)

	resp := env.doJSON(t, http.MethodPost, "/v1/sessions/"+id+"/models", `{"modelSize":"medium"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRouter_LoadModelAndSnapshot(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := "/v1/sessions/" + id

	for i := 0; i < 2; i++ {
		if resp := env.doJSON(t, http.MethodPost, base+"/models", `{"modelSize":"small"}`); resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
	if got := env.backend.TotalLoads(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}

	for i := 0; i < 2; i++ {
		snap := decode[session.Snapshot](t, env.do(t, http.MethodGet, base, "", nil))
		if len(snap.LoadedModels) != 1 || snap.LoadedModels[0] != "stt:small" {
			t.Errorf("expected [stt:small], got %v", snap.LoadedModels)
		}
	}
	if got := env.backend.TotalLoads(); got != 1 {
		t.Errorf("expected reads not to load, got %d loads", got)
	}
}

func TestRouter_EditTranscriptThenSynthesize(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := "/v1/sessions/" + id

	if resp := env.doJSON(t, http.MethodPut, base+"/transcript", `{"text":"hola mundo"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp := env.doJSON(t, http.MethodPost, base+"/speech", `{"language":"Spanish","speed":"slow"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "ID3|es|0.3|hola mundo" {
		t.Errorf("unexpected audio %q", data)
	}
	if resp.Header.Get("X-Synthesis-Backend") != "translate" {
		t.Errorf("expected translate backend, got %s", resp.Header.Get("X-Synthesis-Backend"))
	}
}

func TestRouter_DeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	if resp := env.do(t, http.MethodDelete, "/v1/sessions/"+id, "", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/v1/sessions/"+id, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestRouter_LanguagesAndBackends(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	langs := decode[struct {
		Languages []map[string]string `json:"languages"`
		Default   string              `json:"default"`
	}](t, env.do(t, http.MethodGet, "/v1/languages", "", nil))
	if len(langs.Languages) != 12 || langs.Default != "English" {
		t.Errorf("unexpected languages response %+v", langs)
	}

	b := decode[audio.Backends](t, env.do(t, http.MethodGet, "/v1/sessions/"+id+"/backends", "", nil))
	if b.STT != "mock" || b.HeavySlot.State != "UNAVAILABLE" {
		t.Errorf("unexpected backends %+v", b)
	}
}

func TestRouter_UI(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(page), "Text to Speech") {
		t.Error("expected the tabbed UI page")
	}
}

func TestRouter_RecordsHTTPMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/v1/sessions/missing", "", nil)

	if got := testutil.CollectAndCount(env.metrics.HTTPRequests); got != 1 {
		t.Errorf("expected 1 request series recorded, got %d", got)
	}
}

func TestRouter_EventsWebSocket(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for env.fanout.Subscribers(id) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.doJSON(t, http.MethodPut, "/v1/sessions/"+id+"/transcript", `{"text":"live"}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.TranscriptEdited
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.EventType != models.EventTranscriptEdited || ev.Text != "live" || ev.SessionID != id {
		t.Errorf("unexpected event %+v", ev)
	}

	// Deleting the session closes the stream.
	env.do(t, http.MethodDelete, "/v1/sessions/"+id, "", nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}
