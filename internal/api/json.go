package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/arbor/internal/apperr"
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
	Token string `json:"token,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: verr.Reason, Token: verr.Token})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrMalformedRow):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrShutdown):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("shutting down"))
	case r.Context().Err() != nil:
		// Client went away; nothing useful to write.
		slog.Debug(op+" cancelled", slog.String("error", err.Error()))
	default:
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
