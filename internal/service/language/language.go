// Package language maps the UI-facing synthesis language labels to the wire
// codes expected by text-to-speech backends.
package language

import (
	"strings"

	"ai-speech-roundtrip-service/internal/apperr"
)

// Language is one selectable synthesis language.
type Language struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// table is in display order. Labels and codes are both unique.
var table = []Language{
	{Label: "English", Code: "en"},
	{Label: "English (US)", Code: "en-us"},
	{Label: "English (UK)", Code: "en-gb"},
	{Label: "English (Australia)", Code: "en-au"},
	{Label: "Spanish", Code: "es"},
	{Label: "French", Code: "fr"},
	{Label: "German", Code: "de"},
	{Label: "Italian", Code: "it"},
	{Label: "Portuguese", Code: "pt"},
	{Label: "Hindi", Code: "hi"},
	{Label: "Japanese", Code: "ja"},
	{Label: "Chinese", Code: "zh-CN"},
}

var (
	byLabel = make(map[string]Language, len(table))
	byCode  = make(map[string]Language, len(table))
)

func init() {
	for _, l := range table {
		byLabel[strings.ToLower(l.Label)] = l
		byCode[strings.ToLower(l.Code)] = l
	}
}

// All returns the supported languages in display order.
func All() []Language {
	out := make([]Language, len(table))
	copy(out, table)
	return out
}

// Code returns the wire code for a UI label.
func Code(label string) (string, error) {
	l, ok := byLabel[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return "", apperr.Errorf(apperr.KindUserInput, "language.code", "unsupported language %q", label)
	}
	return l.Code, nil
}

// Lookup resolves either a UI label or a wire code, case-insensitively.
func Lookup(labelOrCode string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(labelOrCode))
	if l, ok := byLabel[key]; ok {
		return l, nil
	}
	if l, ok := byCode[key]; ok {
		return l, nil
	}
	return Language{}, apperr.Errorf(apperr.KindUserInput, "language.lookup", "unsupported language %q", labelOrCode)
}

// Base returns the primary subtag of a wire code ("en-gb" -> "en"). STT
// backends take it as their language hint.
func Base(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		return strings.ToLower(code[:i])
	}
	return strings.ToLower(code)
}
