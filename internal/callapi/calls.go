package callapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/rapid/internal/bus"
	"github.com/linnemanlabs/rapid/internal/triage"
)

const maxListLimit = 200

// handleListCalls serves GET /api/v1/calls with filtering and pagination.
func (a *API) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := triage.ListOptions{}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = n
	}
	if v := q.Get("status"); v != "" {
		s, err := triage.NormalizeState(v)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		opts.Status = s
	}
	// "type" is the legacy spelling of the kind filter.
	v := q.Get("kind")
	if v == "" {
		v = q.Get("type")
	}
	if v != "" {
		k, err := triage.NormalizeKind(v)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "unknown emergency type")
			return
		}
		opts.Kind = k
	}
	if v := q.Get("severity"); v != "" {
		s, err := triage.NormalizeSeverity(v)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "unknown severity")
			return
		}
		opts.Severity = s
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		opts.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		opts.To = t
	}

	calls, total, err := a.store.ListRecent(r.Context(), opts)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list calls")
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if calls == nil {
		calls = []triage.CallRecord{}
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"calls":  calls,
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// handleGetCall serves GET /api/v1/calls/{callSid} with its notes.
func (a *API) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")

	rec, notes, err := a.store.GetByCallSid(r.Context(), callSid)
	if err != nil {
		if errors.Is(err, triage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "call not found")
			return
		}
		a.logger.Error(r.Context(), err, "failed to get call", "call_sid", callSid)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if notes == nil {
		notes = []triage.Note{}
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"call":  rec,
		"notes": notes,
	})
}

type updateCallRequest struct {
	Status       string `json:"status"`
	AssignedUnit string `json:"assigned_unit"`
	Note         string `json:"note"`
	Author       string `json:"author"`
}

// handleUpdateCall serves PUT /api/v1/calls/{callSid}: dispatcher status
// transitions, unit assignment, and optional note in one request.
func (a *API) handleUpdateCall(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")

	var req updateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Status == "" && req.AssignedUnit == "" && req.Note == "" {
		a.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	var status triage.CallState
	if req.Status != "" {
		s, err := triage.NormalizeState(req.Status)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		status = s
	}

	var rec *triage.CallRecord
	var err error
	if status != "" || req.AssignedUnit != "" {
		if status == "" {
			// Unit-only update keeps the current status.
			cur, _, getErr := a.store.GetByCallSid(r.Context(), callSid)
			if getErr != nil {
				if errors.Is(getErr, triage.ErrNotFound) {
					a.writeError(w, http.StatusNotFound, "call not found")
					return
				}
				a.logger.Error(r.Context(), getErr, "failed to load call", "call_sid", callSid)
				a.writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			status = cur.Status
		}
		rec, err = a.store.UpdateStatus(r.Context(), callSid, status, req.AssignedUnit)
	} else {
		rec, _, err = a.store.GetByCallSid(r.Context(), callSid)
	}
	if err != nil {
		if errors.Is(err, triage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "call not found")
			return
		}
		a.logger.Error(r.Context(), err, "failed to update call", "call_sid", callSid)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var note *triage.Note
	if req.Note != "" {
		note, err = a.store.AppendNote(r.Context(), callSid, req.Note, req.Author)
		if err != nil {
			a.logger.Error(r.Context(), err, "failed to append note", "call_sid", callSid)
			a.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if a.hub != nil {
		a.hub.Publish(bus.TopicCallUpdate, map[string]any{
			"call_sid":      rec.CallSid,
			"status":        rec.Status,
			"assigned_unit": rec.AssignedUnit,
			"updated_at":    rec.UpdatedAt,
		})
	}

	resp := map[string]any{"call": rec}
	if note != nil {
		resp["note"] = note
	}
	a.writeJSON(w, http.StatusOK, resp)
}

// handleAnalytics serves GET /api/v1/analytics over a 24h window by default;
// ?hours=N widens or narrows it.
func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		window = time.Duration(n) * time.Hour
	}

	report, err := a.store.Analytics(r.Context(), window)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to compute analytics")
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}
