package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/devicehub-core/internal/broker"
)

// Wire result codes. Every gotapi response carries a result field;
// errors additionally carry errorCode and errorMessage. The transport
// status is 200 for both so legacy clients can parse uniformly.
const (
	resultOK    = 0
	resultError = 1
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

// writeBrokerResponse serialises a broker response onto the wire.
func writeBrokerResponse(w http.ResponseWriter, resp broker.Response) {
	body := make(map[string]any, len(resp.Payload)+3)
	for k, v := range resp.Payload {
		body[k] = v
	}
	if resp.Status == broker.StatusOK {
		body["result"] = resultOK
	} else {
		body["result"] = resultError
		body["errorCode"] = resp.ErrorCode
		body["errorMessage"] = resp.ErrorMessage
	}
	writeJSON(w, http.StatusOK, body)
}

// writeGotapiError writes an error in the gotapi result envelope
// without going through the broker.
func writeGotapiError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"result":       resultError,
		"errorCode":    code,
		"errorMessage": message,
	})
}

// writeUnauthorized writes a 401 response for endpoints outside the
// gotapi envelope (WebSocket upgrade, approval admin).
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": message})
}

// writeBadRequest writes a 400 response for endpoints outside the
// gotapi envelope.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": message})
}

// writeNotFound writes a 404 response for endpoints outside the
// gotapi envelope.
func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": message})
}

// writeInternalError writes a 500 response for endpoints outside the
// gotapi envelope.
func writeInternalError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": message})
}
