// Command audioclient drives one round trip against the HTTP API: upload a
// clip, transcribe it, synthesize the transcript and save the result.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

type client struct {
	base string
	http *http.Client
}

func main() {
	audioFile := flag.String("audio", "testdata/hello-16khz.wav", "Path to audio file (wav, mp3 or m4a)")
	server := flag.String("server", "http://localhost:8080", "HTTP server address")
	modelSize := flag.String("model", "base", "Whisper model size (tiny, base, small, medium)")
	lang := flag.String("language", "English", "Synthesis language label or code")
	speed := flag.String("speed", "normal", "Speech speed (normal, slow)")
	text := flag.String("text", "", "Synthesize this text instead of the transcript")
	out := flag.String("out", "generated_speech.mp3", "Where to write the synthesized speech")
	flag.Parse()

	data, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}
	if strings.EqualFold(filepath.Ext(*audioFile), ".wav") {
		if err := checkWAV(data); err != nil {
			log.Fatalf("Invalid WAV file: %v", err)
		}
	}

	c := &client{base: strings.TrimRight(*server, "/") + "/v1", http: &http.Client{Timeout: 5 * time.Minute}}

	var sess struct {
		ID string `json:"id"`
	}
	if err := c.do(http.MethodPost, "/sessions", "", nil, &sess); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	log.Printf("Session created: %s", sess.ID)
	defer func() {
		if err := c.do(http.MethodDelete, "/sessions/"+sess.ID, "", nil, nil); err != nil {
			log.Printf("Failed to delete session: %v", err)
		}
	}()

	body, contentType, err := multipartUpload(filepath.Base(*audioFile), data, *modelSize)
	if err != nil {
		log.Fatalf("Failed to build upload: %v", err)
	}
	var tr struct {
		Text      string `json:"text"`
		ModelSize string `json:"modelSize"`
		Backend   string `json:"backend"`
		LatencyMs int64  `json:"latencyMs"`
	}
	start := time.Now()
	if err := c.do(http.MethodPost, "/sessions/"+sess.ID+"/transcribe", contentType, body, &tr); err != nil {
		log.Fatalf("Transcription failed: %v", err)
	}
	log.Printf("Transcript (%s/%s, %dms): %q", tr.Backend, tr.ModelSize, tr.LatencyMs, tr.Text)

	req := map[string]any{"language": *lang, "speed": *speed}
	if *text != "" {
		req["text"] = *text
	}
	payload, _ := json.Marshal(req)
	if err := c.do(http.MethodPost, "/sessions/"+sess.ID+"/speech", "application/json", bytes.NewReader(payload), nil); err != nil {
		log.Fatalf("Synthesis failed: %v", err)
	}

	resp, err := c.http.Get(c.base + "/sessions/" + sess.ID + "/speech")
	if err != nil {
		log.Fatalf("Download failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Download failed: %s", readError(resp))
	}
	mp3, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Download failed: %v", err)
	}
	if err := os.WriteFile(*out, mp3, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}

	log.Printf("Round trip completed in %v: wrote %d bytes to %s (backend=%s)",
		time.Since(start).Round(time.Millisecond), len(mp3), *out, resp.Header.Get("X-Synthesis-Backend"))
}

// checkWAV validates the RIFF header and logs the PCM format.
func checkWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return fmt.Errorf("file shorter than a WAV header")
	}
	header := data[:wavHeaderSize]
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return fmt.Errorf("missing RIFF/WAVE header")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		return fmt.Errorf("only PCM format supported, got %d", audioFormat)
	}
	return nil
}

func multipartUpload(filename string, data []byte, modelSize string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("modelSize", modelSize); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *client) do(method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, readError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readError(resp *http.Response) string {
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Message == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s (%s)", body.Error.Message, body.Error.Kind)
}
