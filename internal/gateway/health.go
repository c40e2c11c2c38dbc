package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"` // "ok" or "degraded"
	Scheduler bool   `json:"scheduler_running"`
	Reconcile string `json:"reconcile_state,omitempty"`
}

// handleHealth returns 200 while the dispatch loop runs, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.jobs != nil {
			resp.Scheduler = g.jobs.Running()
			if !resp.Scheduler {
				resp.Status = "degraded"
			}
		}
		if g.reconciler != nil {
			resp.Reconcile = g.reconciler.State().String()
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
