package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nodeflow/internal/apperr"
)

// maxBody caps request bodies. Flow documents are small.
const maxBody = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error    string `json:"error" validate:"required"`
	Redirect string `json:"redirect,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// loginPath is where clients send the user when the backend session is gone.
const loginPath = "/login"

// writeError maps a service error to a status code and body. op names the
// operation in the log line for unexpected failures.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		verrs validation.Errors
		cfg   *apperr.ConfigError
	)
	switch {
	case apperr.IsRedirect(err):
		writeJSON(w, http.StatusUnauthorized, errResponse{Error: "backend session expired", Redirect: loginPath})
	case errors.As(err, &verrs),
		errors.Is(err, apperr.ErrInvalid),
		errors.Is(err, apperr.ErrUnknownField),
		errors.Is(err, apperr.ErrInvalidConnection):
		// Checked before ErrNotFound: an invalid document may wrap both.
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrUnexpected):
		slog.Warn(op+" failed upstream", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("backend request failed"))
	case errors.As(err, &cfg):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(cfg.What))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodeJSON reads a size-limited JSON body into v and validates it when v
// implements validation.Validatable.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w: %w", apperr.ErrInvalid, err)
	}
	if vv, ok := v.(validation.Validatable); ok {
		return vv.Validate()
	}
	return nil
}
