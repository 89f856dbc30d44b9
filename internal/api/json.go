package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/decksmith/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindArchiveFormat, apperr.KindDecompression, apperr.KindInvalid:
		return http.StatusUnprocessableEntity
	case apperr.KindIO:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status of its kind. Server-side failures
// are logged and their detail withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: kind.String()})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: kind.String()})
}
