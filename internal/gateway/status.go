package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      int64  `json:"uptime_seconds"`
	Running     bool   `json:"running"`
	Jobs        int    `json:"jobs"`
	Scheduled   int    `json:"scheduled"`
	Executing   int    `json:"executing"`
	Reconcile   string `json:"reconcile_state,omitempty"`
	Subscribers int    `json:"stream_subscribers"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime: int64(time.Since(g.startedAt).Seconds()),
		}

		if g.jobs != nil {
			resp.Running = g.jobs.Running()
			states, err := g.jobs.Jobs(r.Context())
			if err != nil {
				g.logger.Error("gateway: listing jobs", "error", err)
				writeError(w, http.StatusInternalServerError, "cannot list jobs")
				return
			}
			resp.Jobs = len(states)
			for _, st := range states {
				if st.Scheduled {
					resp.Scheduled++
				}
				if st.Running {
					resp.Executing++
				}
			}
		}
		if g.reconciler != nil {
			resp.Reconcile = g.reconciler.State().String()
		}
		if g.events != nil {
			resp.Subscribers = g.events.Subscribers()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
