package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// discoveryServiceInfo describes a discovery service in API responses.
type discoveryServiceInfo struct {
	ID                  string   `json:"id"`
	ThingTypes          []string `json:"thing_types"`
	ScanTimeoutSeconds  int      `json:"scan_timeout_seconds"`
	SupportsInput       bool     `json:"supports_input"`
	ScanInProgress      bool     `json:"scan_in_progress"`
	LastScan            string   `json:"last_scan,omitempty"`
	BackgroundDiscovery bool     `json:"background_discovery"`
}

// scanRequest is the optional request body for POST /discovery/services/{id}/scan.
type scanRequest struct {
	// Input is operator-provided scan input (a PIN, an address range).
	// Only honoured by services that support input.
	Input string `json:"input,omitempty"`
}

// backgroundRequest is the request body for PUT /discovery/services/{id}/background.
type backgroundRequest struct {
	Enabled bool `json:"enabled"`
}

// broadcastScanListener reports scan completion to WebSocket subscribers.
type broadcastScanListener struct {
	hub     *Hub
	service string
	started time.Time
}

func (l *broadcastScanListener) OnFinished() {
	l.hub.Broadcast("discovery.scan_finished", map[string]any{
		"service":     l.service,
		"duration_ms": time.Since(l.started).Milliseconds(),
	})
}

func (l *broadcastScanListener) OnError(err error) {
	l.hub.Broadcast("discovery.scan_failed", map[string]any{
		"service": l.service,
		"error":   err.Error(),
	})
}

// handleListDiscoveryServices returns all registered discovery services.
func (s *Server) handleListDiscoveryServices(w http.ResponseWriter, _ *http.Request) {
	services := s.discovery.Services()

	infos := make([]discoveryServiceInfo, 0, len(services))
	for _, svc := range services {
		infos = append(infos, serviceInfo(svc))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services": infos,
		"count":    len(infos),
	})
}

// handleGetDiscoveryService returns one discovery service by binding ID.
func (s *Server) handleGetDiscoveryService(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, serviceInfo(svc))
}

// handleDiscoveryServiceResults returns the service's cached results.
// The cache holds everything the service has discovered and not retracted,
// regardless of whether the inbox still has an entry for it.
func (s *Server) handleDiscoveryServiceResults(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}

	results := svc.CachedResults()
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// handleStartScan starts an active scan on one service. The scan runs
// asynchronously; completion is broadcast on "discovery.scan_finished".
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	listener := &broadcastScanListener{hub: s.hub, service: svc.ID(), started: time.Now()}

	var err error
	if req.Input != "" {
		err = svc.StartScanWithInput(req.Input, listener)
	} else {
		err = svc.StartScan(listener)
	}
	if err != nil {
		s.logger.Error("failed to start scan", "service", svc.ID(), "error", err)
		writeInternalError(w, "failed to start scan: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "scanning",
		"service": svc.ID(),
		"timeout_seconds": int(svc.ScanTimeout().Seconds()),
	})
}

// handleScanAll starts an active scan on every registered service.
func (s *Server) handleScanAll(w http.ResponseWriter, _ *http.Request) {
	listener := &broadcastScanListener{hub: s.hub, service: "all", started: time.Now()}

	if err := s.discovery.StartScanAll(listener); err != nil {
		s.logger.Error("failed to start scan on all services", "error", err)
		writeInternalError(w, "failed to start scan: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "scanning",
		"services": len(s.discovery.Services()),
	})
}

// handleAbortScans aborts all in-flight scans without waiting for their
// timeouts. Listeners receive ErrScanAborted.
func (s *Server) handleAbortScans(w http.ResponseWriter, _ *http.Request) {
	s.discovery.AbortScans()
	writeJSON(w, http.StatusOK, map[string]any{"status": "aborted"})
}

// handleAbortServiceScan aborts the in-flight scan on one service. Scans
// on other services keep running.
func (s *Server) handleAbortServiceScan(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}

	svc.AbortScan()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "aborted",
		"service": svc.ID(),
	})
}

// handleSetBackgroundDiscovery toggles continuous background discovery on
// one service.
func (s *Server) handleSetBackgroundDiscovery(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}

	var req backgroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := svc.SetBackgroundDiscovery(req.Enabled); err != nil {
		s.logger.Error("failed to toggle background discovery",
			"service", svc.ID(), "enabled", req.Enabled, "error", err)
		writeInternalError(w, "failed to toggle background discovery")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": svc.ID(),
		"enabled": req.Enabled,
	})
}

// lookupService resolves the {id} URL parameter to a discovery service,
// writing a 404 when it does not exist.
func (s *Server) lookupService(w http.ResponseWriter, r *http.Request) (*discovery.Service, bool) {
	id := chi.URLParam(r, "id")
	svc, err := s.discovery.Service(id)
	if err != nil {
		if errors.Is(err, discovery.ErrServiceNotFound) {
			writeNotFound(w, "no discovery service "+id)
			return nil, false
		}
		s.logger.Error("failed to look up discovery service", "service", id, "error", err)
		writeInternalError(w, "failed to look up discovery service")
		return nil, false
	}
	return svc, true
}

// serviceInfo converts a discovery service to its API representation.
func serviceInfo(svc *discovery.Service) discoveryServiceInfo {
	types := svc.ThingTypes()
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}

	info := discoveryServiceInfo{
		ID:                  svc.ID(),
		ThingTypes:          typeStrs,
		ScanTimeoutSeconds:  int(svc.ScanTimeout().Seconds()),
		SupportsInput:       svc.SupportsInput(),
		ScanInProgress:      svc.ScanInProgress(),
		BackgroundDiscovery: svc.BackgroundDiscoveryEnabled(),
	}
	if last := svc.LastScan(); !last.IsZero() {
		info.LastScan = last.UTC().Format(time.RFC3339)
	}
	return info
}
