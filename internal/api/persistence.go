package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/hearth-home/hearth-core/internal/infrastructure/influxdb"
)

// defaultHistoryWindow is how far back event queries reach when the
// request carries no "from" parameter.
const defaultHistoryWindow = 24 * time.Hour

// handlePersistenceEvents returns recorded event history for one
// measurement.
//
// GET /api/v1/persistence/events?measurement=inbox_events&from=...&to=...
//
// The from/to parameters are RFC 3339 timestamps. They default to the
// last 24 hours.
func (s *Server) handlePersistenceEvents(w http.ResponseWriter, r *http.Request) {
	if s.influx == nil {
		writeNotFound(w, "persistence is not enabled")
		return
	}

	measurement := r.URL.Query().Get("measurement")
	if measurement == "" {
		writeBadRequest(w, "measurement parameter is required")
		return
	}

	to := time.Now().UTC()
	from := to.Add(-defaultHistoryWindow)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid from timestamp, expected RFC 3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid to timestamp, expected RFC 3339")
			return
		}
		to = t
	}

	events, err := s.influx.QueryEvents(r.Context(), measurement, from, to)
	if err != nil {
		switch {
		case errors.Is(err, influxdb.ErrInvalidMeasurement):
			writeBadRequest(w, "unknown measurement")
		case errors.Is(err, influxdb.ErrNotConnected):
			writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "persistence backend unavailable")
		default:
			s.logger.Error("querying event history", "measurement", measurement, "error", err)
			writeInternalError(w, "failed to query event history")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
