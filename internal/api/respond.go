package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/podium/internal/countdown"
	"github.com/MrWong99/podium/internal/meeting"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
)

// maxBodyBytes caps JSON request bodies. Scripts are the largest payload.
const maxBodyBytes = 1 << 20

// errBadRequest marks client errors that carry no domain sentinel.
var errBadRequest = errors.New("bad request")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

// writeError maps err to a status code and writes it as {"error": "..."}.
// Server errors are logged; their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, meeting.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, meeting.ErrInvalid),
		errors.Is(err, errBadRequest),
		errors.Is(err, realtime.ErrEmptyMessage),
		errors.Is(err, realtime.ErrInvalidReaction),
		errors.Is(err, realtime.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, countdown.ErrFinished),
		errors.Is(err, countdown.ErrNoSpeakers),
		errors.Is(err, errAlreadyListening):
		return http.StatusConflict
	case errors.Is(err, errNoRecognizer):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. Unknown fields and trailing data are
// rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: body must hold a single JSON object", errBadRequest)
	}
	return nil
}
