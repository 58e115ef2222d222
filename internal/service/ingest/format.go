package ingest

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ai-speech-roundtrip-service/internal/apperr"
)

// Format tags the encoding of an ingested clip.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatM4A Format = "m4a"
)

// Formats lists the accepted upload formats.
var Formats = []Format{FormatWAV, FormatMP3, FormatM4A}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }

// ContentType returns the MIME type used when serving the clip back.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

// DetectFormat identifies the clip format by sniffing content first, then the
// filename extension, then the declared content type.
func DetectFormat(filename, contentType string, head []byte) (Format, error) {
	if len(head) > 0 {
		if f, ok := sniff(head); ok {
			return f, nil
		}
	}
	if f, ok := fromExtension(filename); ok {
		return f, nil
	}
	if f, ok := fromContentType(contentType); ok {
		return f, nil
	}
	return "", apperr.Errorf(apperr.KindUserInput, "ingest.detect",
		"unsupported audio format (accepted: wav, mp3, m4a)")
}

func sniff(head []byte) (Format, bool) {
	m := mimetype.Detect(head)
	switch {
	case m.Is("audio/wav"):
		return FormatWAV, true
	case m.Is("audio/mpeg"):
		return FormatMP3, true
	case m.Is("audio/x-m4a"), m.Is("audio/mp4"):
		return FormatM4A, true
	}
	return "", false
}

func fromExtension(filename string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "wav", "wave":
		return FormatWAV, true
	case "mp3":
		return FormatMP3, true
	case "m4a":
		return FormatM4A, true
	}
	return "", false
}

func fromContentType(contentType string) (Format, bool) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return FormatWAV, true
	case "audio/mpeg", "audio/mp3":
		return FormatMP3, true
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return FormatM4A, true
	}
	return "", false
}
