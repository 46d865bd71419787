package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/quantdesk/orchestrator/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a typed apierr.Error (or any other error) onto the right
// HTTP status code, matching the error taxonomy's kind-to-status mapping.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		writeJSON(w, statusFor(apiErr.Kind), map[string]string{"error": apiErr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// mustMarshal is used only for the SSE stream, whose payloads are always
// the package's own Event type; a marshal failure there is a programming
// error, not a request-time condition to report to the client.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"marshal failed"}`)
	}
	return b
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindRateLimit:
		return http.StatusTooManyRequests
	case apierr.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
