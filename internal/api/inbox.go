package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/inbox"
	"github.com/hearth-home/hearth-core/internal/thing"
)

// approveRequest is the request body for POST /inbox/{uid}/approve.
type approveRequest struct {
	// Label overrides the discovered label. Empty keeps the result's label.
	Label string `json:"label,omitempty"`

	// ThingID registers the thing under a different ID than the discovered
	// one, e.g. "kitchen-main" instead of a serial number.
	ThingID string `json:"thing_id,omitempty"`
}

// handleListInbox returns all inbox entries, optionally filtered by flag
// (?flag=NEW or ?flag=IGNORED).
func (s *Server) handleListInbox(w http.ResponseWriter, r *http.Request) {
	var entries []inbox.Entry

	if raw := r.URL.Query().Get("flag"); raw != "" {
		flag := discovery.Flag(strings.ToUpper(raw))
		if !flag.Valid() {
			writeBadRequest(w, "flag must be NEW or IGNORED")
			return
		}
		entries = s.inbox.ListByFlag(flag)
	} else {
		entries = s.inbox.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleGetInboxEntry returns a single inbox entry by thing UID.
func (s *Server) handleGetInboxEntry(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	entry, err := s.inbox.Get(uid)
	if err != nil {
		writeNotFound(w, "no inbox entry for "+string(uid))
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteInboxEntry removes an entry from the inbox. The binding may
// rediscover the thing on its next scan.
func (s *Server) handleDeleteInboxEntry(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	removed, err := s.inbox.Remove(r.Context(), uid)
	if err != nil {
		s.logger.Error("failed to remove inbox entry", "thing_uid", uid, "error", err)
		writeInternalError(w, "failed to remove inbox entry")
		return
	}
	if !removed {
		writeNotFound(w, "no inbox entry for "+string(uid))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// handleClearInbox removes every entry from the inbox.
func (s *Server) handleClearInbox(w http.ResponseWriter, r *http.Request) {
	removed, err := s.inbox.Clear(r.Context())
	if err != nil {
		s.logger.Error("failed to clear inbox", "removed", removed, "error", err)
		writeInternalError(w, "failed to clear inbox")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"removed": removed,
	})
}

// handleApproveInboxEntry promotes an inbox entry to a registered thing.
func (s *Server) handleApproveInboxEntry(w http.ResponseWriter, r *http.Request) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	t, err := s.inbox.Approve(r.Context(), uid, req.Label, req.ThingID)
	if err != nil {
		switch {
		case errors.Is(err, inbox.ErrNotInInbox):
			writeNotFound(w, "no inbox entry for "+string(uid))
		case errors.Is(err, inbox.ErrInvalidEntry), errors.Is(err, thing.ErrInvalidThing):
			writeBadRequest(w, err.Error())
		case errors.Is(err, thing.ErrThingExists):
			writeConflict(w, "a thing with that UID already exists")
		default:
			s.logger.Error("failed to approve inbox entry", "thing_uid", uid, "error", err)
			writeInternalError(w, "failed to approve inbox entry")
		}
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// handleIgnoreInboxEntry flags an entry as ignored. Ignored entries survive
// rediscovery but are hidden from the default inbox view.
func (s *Server) handleIgnoreInboxEntry(w http.ResponseWriter, r *http.Request) {
	s.setInboxFlag(w, r, discovery.FlagIgnored)
}

// handleUnignoreInboxEntry restores an ignored entry to NEW.
func (s *Server) handleUnignoreInboxEntry(w http.ResponseWriter, r *http.Request) {
	s.setInboxFlag(w, r, discovery.FlagNew)
}

// setInboxFlag applies a flag change to the entry in the URL.
func (s *Server) setInboxFlag(w http.ResponseWriter, r *http.Request, flag discovery.Flag) {
	uid := discovery.ThingUID(chi.URLParam(r, "uid"))

	if err := s.inbox.SetFlag(r.Context(), uid, flag); err != nil {
		if errors.Is(err, inbox.ErrNotInInbox) {
			writeNotFound(w, "no inbox entry for "+string(uid))
			return
		}
		s.logger.Error("failed to set inbox flag", "thing_uid", uid, "flag", flag, "error", err)
		writeInternalError(w, "failed to update inbox entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"flag":   flag,
	})
}
