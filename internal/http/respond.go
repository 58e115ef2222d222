package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"ai-speech-roundtrip-service/internal/apperr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an error kind to the HTTP status it is rendered with.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	switch apperr.KindOf(err) {
	case apperr.KindUserInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTranscription:
		return http.StatusUnprocessableEntity
	case apperr.KindSynthesis:
		return http.StatusBadGateway
	case apperr.KindModelLoad:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as a non-fatal JSON error. Internal errors are not
// echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if status == http.StatusRequestEntityTooLarge {
		kind, msg = apperr.KindUserInput, "request body too large"
	}

	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Str("kind", kind.String()).Msg("Request failed")

	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind.String(), Message: msg}})
}

// decodeJSON decodes the body into dst. An empty body leaves dst unchanged
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return apperr.Errorf(apperr.KindUserInput, "http.decode", "invalid JSON body: %v", err)
	}
	return nil
}
