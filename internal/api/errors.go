package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/pubsub"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// resultResponse is the body returned for a facade operation.
type resultResponse struct {
	Result  string `json:"result"`
	Code    byte   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeResult maps a facade Result onto an HTTP status.
func writeResult(w http.ResponseWriter, res pubsub.Result) {
	body := resultResponse{Result: res.Kind.String(), Code: res.Code}
	if res.Err != nil {
		body.Message = res.Err.Error()
	}
	writeJSON(w, resultStatus(res), body)
}

func resultStatus(res pubsub.Result) int {
	switch res.Kind {
	case pubsub.KindOK:
		return http.StatusOK
	case pubsub.KindNotConnected:
		return http.StatusServiceUnavailable
	case pubsub.KindTimeout:
		return http.StatusGatewayTimeout
	case pubsub.KindProtocolRejected:
		return http.StatusBadGateway
	}
	if errors.Is(res.Err, mqtt.ErrInvalidTopic) || errors.Is(res.Err, mqtt.ErrPayloadTooLarge) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
