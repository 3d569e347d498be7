package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// errInvalidRequestBody is the shared message for unparseable JSON bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON writes data as a JSON response with the given status code.
// A nil data value produces an empty body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondError writes a JSON error envelope of the form {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck reports service liveness. The route is registered without
// authentication so probes do not need a token.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "person-matcher",
	})
}
