package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Discovery     DiscoveryMetrics `json:"discovery"`
	Inbox         InboxMetrics     `json:"inbox"`
	Things        ThingMetrics     `json:"things"`
	Rules         *RuleMetrics     `json:"rules,omitempty"`
	Database      DatabaseMetrics  `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DiscoveryMetrics contains discovery pipeline statistics.
type DiscoveryMetrics struct {
	Services        int `json:"services"`
	ScansInProgress int `json:"scans_in_progress"`
	BackgroundOn    int `json:"background_on"`
}

// InboxMetrics contains inbox statistics.
type InboxMetrics struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Ignored int `json:"ignored"`
}

// ThingMetrics contains thing registry statistics.
type ThingMetrics struct {
	Total int `json:"total"`
}

// RuleMetrics contains rule engine statistics.
type RuleMetrics struct {
	Total   int `json:"total"`
	Running int `json:"running"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket = WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	// MQTT metrics (if available)
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	// Discovery pipeline stats
	services := s.discovery.Services()
	metrics.Discovery = DiscoveryMetrics{Services: len(services)}
	for _, svc := range services {
		if svc.ScanInProgress() {
			metrics.Discovery.ScansInProgress++
		}
		if svc.BackgroundDiscoveryEnabled() {
			metrics.Discovery.BackgroundOn++
		}
	}

	// Inbox stats
	metrics.Inbox = InboxMetrics{
		Total:   s.inbox.Count(),
		New:     len(s.inbox.ListByFlag(discovery.FlagNew)),
		Ignored: len(s.inbox.ListByFlag(discovery.FlagIgnored)),
	}

	// Thing registry stats
	metrics.Things = ThingMetrics{Total: s.things.Count()}

	// Rule engine stats (if enabled)
	if s.rules != nil {
		rm := &RuleMetrics{Total: s.rules.Count()}
		if s.rulesEngine != nil {
			rm.Running = s.rulesEngine.Running()
		}
		metrics.Rules = rm
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
