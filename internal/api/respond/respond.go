// Package respond writes JSON responses and errors for the HTTP handlers.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const (
	CodeValidation   = "VALIDATION"
	CodeAuth         = "AUTH"
	CodeNotFound     = "NOT_FOUND"
	CodeSizeExceeded = "SIZE_EXCEEDED"
	CodeTypeRejected = "TYPE_REJECTED"
	CodeServer       = "SERVER"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, errorBody{Error: msg, Code: code})
}

// Internal logs err against the request and answers a generic 500.
func Internal(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	Error(w, http.StatusInternalServerError, CodeServer, "internal error")
}
