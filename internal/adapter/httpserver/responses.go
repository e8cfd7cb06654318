// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST management surface for schedules, accounts,
// proxies, API profiles and view plans, and keeps HTTP concerns
// (decoding, validation, status mapping) out of the usecases.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrQuotaExceeded):
		code = http.StatusTooManyRequests
		codeStr = "QUOTA_EXCEEDED"
	case errors.Is(err, domain.ErrProxyUnavailable):
		code = http.StatusBadGateway
		codeStr = "PROXY_UNAVAILABLE"
	case errors.Is(err, domain.ErrTokenRefresh):
		code = http.StatusBadGateway
		codeStr = "TOKEN_REFRESH"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_TIMEOUT"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
