package handlers

import (
	"net/http"
)

// HealthCheck reports process liveness. No auth, no dependencies.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
