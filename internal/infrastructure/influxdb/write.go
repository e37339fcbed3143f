package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDiscoveryEvent records a discovery pipeline event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - service: The discovery service that produced the event (e.g. "mdns")
//   - eventType: What happened ("discovered", "removed", "scan_finished")
//   - thingUID: The thing the event concerns, empty for service-level events
//
// Example:
//
//	client.WriteDiscoveryEvent("mdns", "discovered", "mdns:service:kitchen-bulb")
func (c *Client) WriteDiscoveryEvent(service, eventType, thingUID string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery_events",
		map[string]string{
			"service": service,
			"event":   eventType,
		},
		map[string]interface{}{
			"thing_uid": thingUID,
			"count":     1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteInboxEvent records an inbox lifecycle event.
//
// Parameters:
//   - eventType: "added", "updated", "removed", "approved" or "ignored"
//   - thingUID: The inbox entry's thing UID
//   - flag: The entry's flag at event time ("NEW" or "IGNORED")
func (c *Client) WriteInboxEvent(eventType, thingUID, flag string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"inbox_events",
		map[string]string{
			"event": eventType,
			"flag":  flag,
		},
		map[string]interface{}{
			"thing_uid": thingUID,
			"count":     1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteThingEvent records a thing registry change.
//
// Parameters:
//   - eventType: "added", "updated" or "removed"
//   - thingUID: The thing's UID
func (c *Client) WriteThingEvent(eventType, thingUID string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"thing_events",
		map[string]string{
			"event": eventType,
		},
		map[string]interface{}{
			"thing_uid": thingUID,
			"count":     1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteScanMetric records the duration and yield of a completed scan.
//
// Parameters:
//   - service: The discovery service that ran the scan
//   - duration: How long the scan took
//   - results: How many results the scan produced
func (c *Client) WriteScanMetric(service string, duration time.Duration, results int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery_scans",
		map[string]string{
			"service": service,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"results":     results,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "hearth-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
