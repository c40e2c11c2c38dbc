package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/security"
)

// handleListJobs returns the state of every stored job.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		states, err := g.jobs.Jobs(r.Context())
		if err != nil {
			g.logger.Error("gateway: listing jobs", "error", err)
			writeError(w, http.StatusInternalServerError, "cannot list jobs")
			return
		}
		if states == nil {
			states = []scheduler.JobState{}
		}
		writeJSON(w, http.StatusOK, states)
	}
}

// handleGetJob returns a single job.
func (g *Gateway) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		st, err := g.jobs.Job(r.Context(), identityParam(r))
		if err != nil {
			g.writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// handleRunJob fires a job immediately. The run is asynchronous; its outcome
// is published on the execution stream.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		id := identityParam(r)
		if err := g.jobs.RunNow(r.Context(), id); err != nil {
			g.writeJobError(w, err)
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventJobRun, Job: id.String(), Remote: r.RemoteAddr})
		g.logger.Info("gateway: manual run requested", "job", id.String())
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": id.String()})
	}
}

// handleReconcile runs a reconciliation pass and returns its report.
func (g *Gateway) handleReconcile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reconciler == nil {
			writeError(w, http.StatusServiceUnavailable, "reconciler not available")
			return
		}
		// A pass is not interrupted half way through when the client leaves.
		report, err := g.reconciler.Reconcile(context.WithoutCancel(r.Context()))
		if err != nil {
			g.logger.Error("gateway: reconcile failed", "error", err)
			writeError(w, reconcileStatus(err), err.Error())
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventReconcile, Remote: r.RemoteAddr})
		writeJSON(w, http.StatusOK, report)
	}
}

// handlePlan returns what a reconciliation pass would change.
func (g *Gateway) handlePlan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reconciler == nil {
			writeError(w, http.StatusServiceUnavailable, "reconciler not available")
			return
		}
		report, err := g.reconciler.Plan(r.Context())
		if err != nil {
			writeError(w, reconcileStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
}

// handleListModules lists all compiled modules.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{ID: string(m.ID), Namespace: m.ID.Namespace()})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func identityParam(r *http.Request) job.Identity {
	return job.Identity{Group: chi.URLParam(r, "group"), Name: chi.URLParam(r, "name")}
}

func (g *Gateway) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, "job already running")
	case errors.Is(err, scheduler.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
	default:
		g.logger.Error("gateway: job request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// reconcileStatus maps declaration errors to 422, a disabled scheduler to
// 409 and the rest to 500.
func reconcileStatus(err error) int {
	switch {
	case errors.Is(err, schedule.ErrConfiguration), errors.Is(err, job.ErrDiscovery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
