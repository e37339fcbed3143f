package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/rules"
)

// createRuleRequest is the request body for POST /rules.
type createRuleRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Enabled        bool     `json:"enabled"`
	TriggerPattern string   `json:"trigger_pattern"`
	LuaSource      string   `json:"lua_source"`
	Tags           []string `json:"tags,omitempty"`
}

// updateRuleRequest is the request body for PATCH /rules/{id}.
// Only non-nil fields are applied.
type updateRuleRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	TriggerPattern *string  `json:"trigger_pattern,omitempty"`
	LuaSource      *string  `json:"lua_source,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// testRuleRequest is the request body for POST /rules/test.
type testRuleRequest struct {
	LuaSource string `json:"lua_source"`
}

// handleListRules returns all rules, optionally filtered by tag (?tag=night).
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	var (
		list []rules.Rule
		err  error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		list, err = s.rules.ListByTag(r.Context(), tag)
	} else {
		list, err = s.rules.List(r.Context())
	}
	if err != nil {
		s.logger.Error("failed to list rules", "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// handleGetRule returns a single rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	rule, err := s.rules.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "no rule "+id)
			return
		}
		s.logger.Error("failed to get rule", "id", id, "error", err)
		writeInternalError(w, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a rule. Enabled rules start running immediately.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rule := &rules.Rule{
		Name:           req.Name,
		Description:    req.Description,
		Enabled:        req.Enabled,
		TriggerPattern: req.TriggerPattern,
		LuaSource:      req.LuaSource,
		Tags:           req.Tags,
	}

	if err := s.rules.Create(r.Context(), rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrInvalidRule),
			errors.Is(err, rules.ErrInvalidName),
			errors.Is(err, rules.ErrInvalidPattern),
			errors.Is(err, rules.ErrNoSource):
			writeBadRequest(w, err.Error())
		case errors.Is(err, rules.ErrRuleExists):
			writeConflict(w, "a rule with that ID already exists")
		default:
			s.logger.Error("failed to create rule", "name", req.Name, "error", err)
			writeInternalError(w, "failed to create rule")
		}
		return
	}

	s.reloadRule(r, rule.ID)
	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule applies partial updates to a rule and reloads its VM.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	id := chi.URLParam(r, "id")

	var req updateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rule, err := s.rules.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "no rule "+id)
			return
		}
		s.logger.Error("failed to get rule for update", "id", id, "error", err)
		writeInternalError(w, "failed to update rule")
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.TriggerPattern != nil {
		rule.TriggerPattern = *req.TriggerPattern
	}
	if req.LuaSource != nil {
		rule.LuaSource = *req.LuaSource
	}
	if req.Tags != nil {
		rule.Tags = req.Tags
	}

	if err := s.rules.Update(r.Context(), rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrInvalidRule),
			errors.Is(err, rules.ErrInvalidName),
			errors.Is(err, rules.ErrInvalidPattern),
			errors.Is(err, rules.ErrNoSource):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("failed to update rule", "id", id, "error", err)
			writeInternalError(w, "failed to update rule")
		}
		return
	}

	s.reloadRule(r, id)
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule and stops its VM.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.rules.Delete(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "no rule "+id)
			return
		}
		s.logger.Error("failed to delete rule", "id", id, "error", err)
		writeInternalError(w, "failed to delete rule")
		return
	}

	if s.rulesEngine != nil {
		s.rulesEngine.StopRule(id)
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// handleSetRuleEnabled enables or disables a rule, starting or stopping
// its VM accordingly.
func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	id := chi.URLParam(r, "id")

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.rules.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "no rule "+id)
			return
		}
		s.logger.Error("failed to set rule enabled", "id", id, "error", err)
		writeInternalError(w, "failed to update rule")
		return
	}

	s.reloadRule(r, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": req.Enabled,
	})
}

// handleTestRule runs a script once in a sandboxed VM without saving it.
// Log output and errors are returned to the caller.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	if s.rulesEngine == nil {
		writeNotFound(w, "rules are not enabled")
		return
	}

	var req testRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.LuaSource == "" {
		writeBadRequest(w, "lua_source is required")
		return
	}

	writeJSON(w, http.StatusOK, s.rulesEngine.RunSource(req.LuaSource))
}

// reloadRule restarts a rule's VM after a registry change. Reload failures
// are logged, not surfaced; the registry write already succeeded.
func (s *Server) reloadRule(r *http.Request, id string) {
	if s.rulesEngine == nil {
		return
	}
	if err := s.rulesEngine.ReloadRule(r.Context(), id); err != nil {
		s.logger.Warn("failed to reload rule", "id", id, "error", err)
	}
}
