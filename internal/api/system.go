package api

import (
	"encoding/json"
	"net/http"
)

// FactoryResetRequest defines the options for a factory reset.
type FactoryResetRequest struct {
	ClearInbox  bool   `json:"clear_inbox"`
	ClearThings bool   `json:"clear_things"`
	ClearLinks  bool   `json:"clear_links"`
	ClearRules  bool   `json:"clear_rules"`
	Confirm     string `json:"confirm"`
}

// FactoryResetResponse reports what was deleted.
type FactoryResetResponse struct {
	Status  string         `json:"status"`
	Deleted map[string]int `json:"deleted"`
}

// handleFactoryReset clears selected data from the database in a single
// transaction, then refreshes all in-memory caches.
//
// This is a destructive operation. The request must include an exact
// confirmation string as a safety guard.
func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeNotFound(w, "database not configured")
		return
	}

	var req FactoryResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Safety guard: require exact confirmation string.
	if req.Confirm != "FACTORY RESET" {
		writeBadRequest(w, `confirm field must be exactly "FACTORY RESET"`)
		return
	}

	// Must select at least one category.
	if !req.ClearInbox && !req.ClearThings && !req.ClearLinks && !req.ClearRules {
		writeBadRequest(w, "at least one clear_* option must be true")
		return
	}

	// Collect rule IDs before deleting so their VMs can be stopped after.
	var ruleIDs []string
	if req.ClearRules && s.rules != nil {
		if list, err := s.rules.List(r.Context()); err == nil {
			for _, rule := range list {
				ruleIDs = append(ruleIDs, rule.ID)
			}
		}
	}

	ctx := r.Context()
	deleted := make(map[string]int)

	// Execute all DELETEs in a single transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("factory reset: failed to begin transaction", "error", err)
		writeInternalError(w, "failed to begin transaction")
		return
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	// Helper to execute a DELETE and record the count.
	deleteFrom := func(table string) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected() //nolint:errcheck // count is informational
		deleted[table] = int(n)
		return nil
	}

	if req.ClearInbox {
		if err := deleteFrom("inbox_results"); err != nil {
			s.logger.Error("factory reset: failed to clear inbox_results", "error", err)
			writeInternalError(w, "failed to clear inbox")
			return
		}
	}

	if req.ClearLinks || req.ClearThings {
		// Links reference thing channels; clearing things orphans them.
		if err := deleteFrom("links"); err != nil {
			s.logger.Error("factory reset: failed to clear links", "error", err)
			writeInternalError(w, "failed to clear links")
			return
		}
	}

	if req.ClearThings {
		if err := deleteFrom("things"); err != nil {
			s.logger.Error("factory reset: failed to clear things", "error", err)
			writeInternalError(w, "failed to clear things")
			return
		}
	}

	if req.ClearRules {
		if err := deleteFrom("rules"); err != nil {
			s.logger.Error("factory reset: failed to clear rules", "error", err)
			writeInternalError(w, "failed to clear rules")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("factory reset: failed to commit transaction", "error", err)
		writeInternalError(w, "failed to commit factory reset")
		return
	}

	s.logger.Info("factory reset committed", "deleted", deleted)

	// Refresh in-memory caches after successful DB wipe.
	if req.ClearThings {
		if err := s.things.RefreshCache(ctx); err != nil {
			s.logger.Warn("factory reset: failed to refresh thing cache", "error", err)
		}
	}
	if req.ClearInbox {
		if err := s.inbox.RefreshCache(ctx); err != nil {
			s.logger.Warn("factory reset: failed to refresh inbox cache", "error", err)
		}
	}
	if req.ClearRules && s.rules != nil {
		if err := s.rules.RefreshCache(ctx); err != nil {
			s.logger.Warn("factory reset: failed to refresh rule cache", "error", err)
		}
		if s.rulesEngine != nil {
			for _, id := range ruleIDs {
				s.rulesEngine.StopRule(id)
			}
		}
	}

	writeJSON(w, http.StatusOK, FactoryResetResponse{
		Status:  "ok",
		Deleted: deleted,
	})
}
