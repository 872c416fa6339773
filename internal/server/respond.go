package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tkohara/ragchat/internal/errdefs"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// respondError maps a service error onto the wire. Internal causes are
// logged but never serialized; the client sees the tagged message only.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := errdefs.KindOf(err)
	status := httpStatus(kind)

	body := &errorBody{
		Code:    errdefs.CodeOf(err),
		Message: "internal server error",
	}

	var e *errdefs.Error
	if errors.As(err, &e) {
		body.Message = e.Message
		body.Details = e.Details
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", kind, "error", err)
	}

	writeJSON(w, status, envelope{Success: false, Error: body})
}

func httpStatus(kind errdefs.Kind) int {
	switch kind {
	case errdefs.InvalidArgument:
		return http.StatusBadRequest
	case errdefs.Unauthorized:
		return http.StatusUnauthorized
	case errdefs.Forbidden:
		return http.StatusForbidden
	case errdefs.NotFound:
		return http.StatusNotFound
	case errdefs.FailedPrecondition:
		return http.StatusConflict
	case errdefs.PolicyViolation:
		return http.StatusUnprocessableEntity
	case errdefs.RateLimited:
		return http.StatusTooManyRequests
	case errdefs.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
