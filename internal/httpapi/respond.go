package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	errx "github.com/telo-ai/server/internal/core/error"
)

type errorBody struct {
	Error string    `json:"error"`
	Code  errx.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status and safe message it carries.
func writeError(w http.ResponseWriter, err error) {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, errx.StatusOf(err), errorBody{Error: appErr.Message, Code: appErr.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errx.SystemErrorMessage})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errx.New(err, http.StatusRequestEntityTooLarge, "request body too large").WithCode(errx.CodeBadRequest)
		}
		return errx.New(err, http.StatusBadRequest, "invalid JSON body").WithCode(errx.CodeBadRequest)
	}
	return nil
}
