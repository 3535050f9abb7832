package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/etlfabric/etlfabric-api/internal/authz"
)

func orgFromRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, ok := authz.OrgIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing org context", http.StatusUnauthorized)
		return 0, false
	}
	return orgID, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
