package handlers

import (
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// SubmitAssignment binds a driver to a client with optional resources.
func (h *LedgerHandler) SubmitAssignment(w http.ResponseWriter, r *http.Request) {
	var req ledger.AssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = middleware.ActorID(r.Context())
	rec, err := h.store.SubmitAssignment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListAssignments returns assignment history, optionally for one driver.
func (h *LedgerHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ListAssignments(r.URL.Query().Get("driver_id")))
}

// SubmitReassignment releases an Active driver and settles every bound item.
func (h *LedgerHandler) SubmitReassignment(w http.ResponseWriter, r *http.Request) {
	var req ledger.ReassignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = middleware.ActorID(r.Context())
	rec, err := h.store.SubmitReassignment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ResolveMissing closes out an item flagged missing by a reassignment.
func (h *LedgerHandler) ResolveMissing(w http.ResponseWriter, r *http.Request) {
	var req ledger.ResolveMissingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = middleware.ActorID(r.Context())
	if err := h.store.ResolveMissing(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Missing item resolved"})
}

// RunIdleDecay triggers a sweep. An empty body sweeps at the current time;
// a supplied instant may not be ahead of the ledger clock.
func (h *LedgerHandler) RunIdleDecay(w http.ResponseWriter, r *http.Request) {
	var tick ledger.IdleDecayTick
	if r.ContentLength != 0 && !decodeJSON(w, r, &tick) {
		return
	}
	if err := h.store.ValidateDecayTick(tick); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.store.RunIdleDecaySweep(r.Context(), tick)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.WithFields(log.Fields{
		"actor_id":  middleware.ActorID(r.Context()),
		"evaluated": res.Evaluated,
		"decayed":   len(res.Decayed),
	}).Info("Manual idle decay sweep")
	writeJSON(w, http.StatusOK, res)
}

// ListAuditLogs returns audit entries filtered by the query string.
func (h *LedgerHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.AuditFilter{
		Action:     models.AuditAction(q.Get("action")),
		ActorID:    q.Get("actor_id"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	var err error
	if f.Since, err = parseTime(q.Get("since")); err != nil {
		writeBadRequest(w, "invalid_query", "since must be RFC 3339")
		return
	}
	if f.Until, err = parseTime(q.Get("until")); err != nil {
		writeBadRequest(w, "invalid_query", "until must be RFC 3339")
		return
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			writeBadRequest(w, "invalid_query", "limit must be a non-negative integer")
			return
		}
	}
	writeJSON(w, http.StatusOK, h.store.ListAuditLogs(f))
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// Health reports liveness, whether the in-memory state is consistent and
// the state of every registered check.
func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.CheckInvariants(r.Context()); err != nil {
		log.WithError(err).Error("Ledger invariant check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	for _, c := range h.checks {
		if err := c.Check(); err != nil {
			log.WithFields(log.Fields{"check": c.Name, "error": err}).Warn("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"check":  c.Name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
