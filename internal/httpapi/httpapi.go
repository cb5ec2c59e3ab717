// Package httpapi provides the operability surface each server binary
// exposes alongside its RPC methods: a health endpoint, nothing more —
// this is ops tooling, not the write/read protocol itself (spec §6).
// Modeled on cmd/room-service/internal/handlers/HealthCheck.go.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter returns a *mux.Router exposing GET /healthz for component.
func NewRouter(component string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthCheck(component)).Methods(http.MethodGet)
	return r
}

func healthCheck(component string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string `json:"status"`
			Component string `json:"component"`
		}{
			Status:    "ok",
			Component: component,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
