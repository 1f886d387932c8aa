// Package health exposes the liveness probe.
package health

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Liveness reports that the process is up. Readiness of downstream systems
// (redis, kafka, upstream providers) is deliberately not checked here.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
