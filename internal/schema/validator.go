// Package schema validates HTTP request bodies with struct tags.
package schema

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"ai-speech-roundtrip-service/internal/apperr"
)

// ModelRequest asks for an STT model to be loaded.
type ModelRequest struct {
	ModelSize string `json:"modelSize" validate:"omitempty,oneof=tiny base small medium"`
	Reload    bool   `json:"reload"`
}

// TranscribeRequest transcribes the session's current clip.
type TranscribeRequest struct {
	ModelSize string `json:"modelSize" validate:"omitempty,oneof=tiny base small medium"`
}

// TranscriptRequest replaces the current transcript.
type TranscriptRequest struct {
	Text *string `json:"text" validate:"required"`
}

// SpeechRequest synthesizes Text, or the transcript when Text is nil.
type SpeechRequest struct {
	Text     *string `json:"text,omitempty"`
	Language string  `json:"language" validate:"omitempty,max=64"`
	Speed    string  `json:"speed" validate:"omitempty,oneof=normal slow"`
}

// HeavyRequest activates a heavy TTS backend.
type HeavyRequest struct {
	Backend string `json:"backend" validate:"required,max=64"`
}

// Validator checks request structs against their validate tags.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns a user input error describing every failed field.
func (v *Validator) Validate(req any) error {
	err := v.v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.E(apperr.KindUserInput, "schema.validate", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" "+describe(fe))
	}
	return apperr.Errorf(apperr.KindUserInput, "schema.validate", "%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
