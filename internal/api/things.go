package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/thing"
)

// createThingRequest is the request body for POST /things.
type createThingRequest struct {
	UID          string         `json:"uid"`
	ThingTypeUID string         `json:"thing_type_uid"`
	BridgeUID    string         `json:"bridge_uid,omitempty"`
	Label        string         `json:"label"`
	Properties   map[string]any `json:"properties,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// updateThingRequest is the request body for PATCH /things/{uid}.
// Only non-nil fields are applied.
type updateThingRequest struct {
	Label  *string        `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// enabledRequest is the request body for PUT /things/{uid}/enabled.
type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// handleListThings returns all registered things, optionally filtered by
// bridge (?bridge=hue:bridge:main).
func (s *Server) handleListThings(w http.ResponseWriter, r *http.Request) {
	var (
		things []thing.Thing
		err    error
	)

	if bridge := r.URL.Query().Get("bridge"); bridge != "" {
		things, err = s.things.ListByBridge(r.Context(), discovery.ThingUID(bridge))
	} else {
		things, err = s.things.List(r.Context())
	}
	if err != nil {
		s.logger.Error("failed to list things", "error", err)
		writeInternalError(w, "failed to list things")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"things": things,
		"count":  len(things),
	})
}

// handleGetThing returns a single thing by UID.
func (s *Server) handleGetThing(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	t, err := s.things.Get(r.Context(), uid)
	if err != nil {
		if errors.Is(err, thing.ErrThingNotFound) {
			writeNotFound(w, "no thing "+string(uid))
			return
		}
		s.logger.Error("failed to get thing", "uid", uid, "error", err)
		writeInternalError(w, "failed to get thing")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleCreateThing registers a thing directly, bypassing the inbox.
// Used for things that no binding discovers (manual IP devices).
func (s *Server) handleCreateThing(w http.ResponseWriter, r *http.Request) {
	var req createThingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t := &thing.Thing{
		UID:          discovery.ThingUID(req.UID),
		ThingTypeUID: discovery.ThingTypeUID(req.ThingTypeUID),
		BridgeUID:    discovery.ThingUID(req.BridgeUID),
		Label:        req.Label,
		Properties:   req.Properties,
		Config:       req.Config,
		Enabled:      true,
	}

	if err := s.things.Add(r.Context(), t); err != nil {
		switch {
		case errors.Is(err, thing.ErrInvalidThing):
			writeBadRequest(w, err.Error())
		case errors.Is(err, thing.ErrThingExists):
			writeConflict(w, "a thing with that UID already exists")
		default:
			s.logger.Error("failed to create thing", "uid", req.UID, "error", err)
			writeInternalError(w, "failed to create thing")
		}
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// handleUpdateThing applies partial updates to a thing's label and config.
func (s *Server) handleUpdateThing(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	var req updateThingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t, err := s.things.Get(r.Context(), uid)
	if err != nil {
		if errors.Is(err, thing.ErrThingNotFound) {
			writeNotFound(w, "no thing "+string(uid))
			return
		}
		s.logger.Error("failed to get thing for update", "uid", uid, "error", err)
		writeInternalError(w, "failed to update thing")
		return
	}

	if req.Label != nil {
		t.Label = *req.Label
	}
	if req.Config != nil {
		t.Config = req.Config
	}

	if err := s.things.Update(r.Context(), t); err != nil {
		if errors.Is(err, thing.ErrInvalidThing) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to update thing", "uid", uid, "error", err)
		writeInternalError(w, "failed to update thing")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleDeleteThing removes a thing from the registry. If the thing's
// representation property still matches an ignored inbox entry, the inbox
// restores that entry to NEW so the device can be re-approved.
func (s *Server) handleDeleteThing(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	t, err := s.things.Delete(r.Context(), uid)
	if err != nil {
		if errors.Is(err, thing.ErrThingNotFound) {
			writeNotFound(w, "no thing "+string(uid))
			return
		}
		s.logger.Error("failed to delete thing", "uid", uid, "error", err)
		writeInternalError(w, "failed to delete thing")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "removed",
		"deleted": t,
	})
}

// handleSetThingEnabled enables or disables communication with a thing.
func (s *Server) handleSetThingEnabled(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.things.SetEnabled(r.Context(), uid, req.Enabled); err != nil {
		if errors.Is(err, thing.ErrThingNotFound) {
			writeNotFound(w, "no thing "+string(uid))
			return
		}
		s.logger.Error("failed to set thing enabled", "uid", uid, "error", err)
		writeInternalError(w, "failed to update thing")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": req.Enabled,
	})
}
