package web

import (
	"errors"
	"net/http"

	"synccal/internal/calendar"
	"synccal/internal/conflict"
	appLog "synccal/internal/log"
	"synccal/internal/model"
	"synccal/internal/recurrence"
	"synccal/internal/syncer"
	"synccal/internal/syncsession"
)

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Statistics())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Statistics())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Statistics())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Syncer.Run(r.Context())
	switch {
	case errors.Is(err, syncer.ErrPassInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// GET /api/conflicts?status=pending|resolved|ignored
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	status := model.ConflictStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ConflictPending, model.ConflictResolved, model.ConflictIgnored:
	default:
		writeError(w, http.StatusBadRequest, "unknown conflict status "+string(status))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Conflicts(status))
}

type strategyRequest struct {
	Strategy model.Strategy `json:"strategy"`
}

type resolveResponse struct {
	Conflict      model.EventConflict    `json:"conflict"`
	AcceptedEvent *model.Event           `json:"acceptedEvent"`
	HistoryEntry  model.SyncHistoryEntry `json:"historyEntry"`
}

// POST /api/conflicts/{id}/resolve {"strategy": "..."}
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	res, err := s.deps.Session.ResolveConflict(r.Context(), id, req.Strategy)
	if err != nil {
		writeError(w, resolveStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Conflict:      res.Conflict,
		AcceptedEvent: res.Accepted,
		HistoryEntry:  res.Entry,
	})
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, syncsession.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conflict.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, syncsession.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// POST /api/conflicts/resolve-all {"strategy": "..."}
func (s *Server) handleResolveAll(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.deps.Session.ResolveAll(r.Context(), req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.History())
}

type scheduleRequest struct {
	Event   model.Event              `json:"event"`
	Pattern *model.RecurrencePattern `json:"pattern,omitempty"`
}

type expandResponse struct {
	Instances []model.Event `json:"instances"`
}

// POST /api/recurrence/expand previews the instances of a pattern without
// storing anything.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Pattern == nil {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	if err := recurrence.Validate(*req.Pattern); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Event.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, expandResponse{Instances: recurrence.Expand(req.Event, *req.Pattern)})
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Local.Events())
}

// POST /api/events {"event": {...}, "pattern": {...}?} stores the event (and
// its instances) locally and exports them.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		report syncer.ExportReport
		err    error
	)
	if req.Pattern != nil {
		report, err = s.deps.Syncer.ScheduleRecurring(r.Context(), req.Event, *req.Pattern)
	} else {
		report, err = s.deps.Syncer.ScheduleEvent(r.Context(), req.Event)
	}
	switch {
	case errors.Is(err, calendar.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appLog.Info("api event scheduled",
		"event_id", report.BaseID,
		"instances", len(report.Instances),
		"failed_exports", len(report.Failures),
	)
	writeJSON(w, http.StatusCreated, report)
}
