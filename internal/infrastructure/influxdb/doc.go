// Package influxdb provides InfluxDB connectivity for Hearth Core.
//
// It wraps the official influxdb-client-go v2 library with Hearth-specific
// patterns for connection management, event-history writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Discovery pipeline events (results produced, removed, scans)
//   - Inbox lifecycle events (added, approved, ignored, expired)
//   - Thing registry changes
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "hearth",
//	    Bucket: "events",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record an inbox event
//	client.WriteInboxEvent("approved", "hue:bulb:kitchen-1", "NEW")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This keeps network overhead low even for chatty discovery bindings.
package influxdb
