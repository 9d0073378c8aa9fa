package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/orchestrator"
)

// successResponse is the body for webhooks that were fully processed,
// including deliberate no-ops.
type successResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	ProcessedCount int    `json:"processedCount"`
}

// ignoredResponse acknowledges loosely-shaped payloads that need no action.
type ignoredResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// failedOperation identifies one failed host mutation so the caller can
// retry selectively instead of resubmitting the whole batch.
type failedOperation struct {
	EventID      string `json:"eventId"`
	ResourceName string `json:"resourceName"`
	Action       string `json:"action"`
}

// failureResponse is the 500 body enumerating every failed operation.
type failureResponse struct {
	Error  string            `json:"error"`
	Failed []failedOperation `json:"failed"`
}

func newFailureResponse(message string, failed []orchestrator.Outcome) failureResponse {
	resp := failureResponse{Error: message, Failed: make([]failedOperation, 0, len(failed))}
	for _, f := range failed {
		resp.Failed = append(resp.Failed, failedOperation{
			EventID:      f.EventID,
			ResourceName: f.ResourceName,
			Action:       string(f.Action),
		})
	}
	return resp
}

// respondWithJSON writes a JSON response with the given status code
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{
		"error": message,
	})
}

// readBody safely reads and limits request body
func readBody(r *http.Request) ([]byte, error) {
	const maxBodySize = 1 << 20 // 1MB
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}
