// Package apperr defines the error taxonomy shared by every user-triggered
// action. Errors carry a Kind so the HTTP layer can render them as
// non-fatal, user-visible messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the stage of the pipeline that produced it.
type Kind int

const (
	KindInternal Kind = iota
	KindIO
	KindModelLoad
	KindTranscription
	KindSynthesis
	KindUserInput
	KindNotFound
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io_error"
	case KindModelLoad:
		return "model_load_error"
	case KindTranscription:
		return "transcription_error"
	case KindSynthesis:
		return "synthesis_error"
	case KindUserInput:
		return "user_input_error"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Sentinel errors for errors.Is checks against a Kind.
var (
	ErrIO            = &Error{Kind: KindIO}
	ErrModelLoad     = &Error{Kind: KindModelLoad}
	ErrTranscription = &Error{Kind: KindTranscription}
	ErrSynthesis     = &Error{Kind: KindSynthesis}
	ErrUserInput     = &Error{Kind: KindUserInput}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

// Error is a classified error with the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// E builds an error of the given kind wrapping err.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns a user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}
