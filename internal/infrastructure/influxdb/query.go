package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventPoint is one row of recorded event history.
type EventPoint struct {
	// Time is the timestamp of the recorded event.
	Time time.Time `json:"time"`

	// Field is the field name within the measurement (e.g. "thing_uid").
	Field string `json:"field"`

	// Value is the field value.
	Value any `json:"value"`

	// Tags carries the point's tag set (e.g. service, event).
	Tags map[string]string `json:"tags,omitempty"`
}

// Measurements written by this package. Queries are restricted to these
// so request parameters cannot be spliced into arbitrary Flux.
var eventMeasurements = map[string]bool{
	"discovery_events": true,
	"inbox_events":     true,
	"thing_events":     true,
	"scan_metrics":     true,
}

// QueryEvents reads event history for one measurement within a time range.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - measurement: One of the measurements this package writes
//   - from: Start of the time range (inclusive)
//   - to: End of the time range (exclusive)
//
// Returns:
//   - []EventPoint: Matching points in ascending time order
//   - error: ErrInvalidMeasurement for unknown measurements, otherwise
//     the query error
func (c *Client) QueryEvents(ctx context.Context, measurement string, from, to time.Time) ([]EventPoint, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if !eventMeasurements[measurement] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMeasurement, measurement)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("influxdb: to must be after from")
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> sort(columns: ["_time"])`,
		c.cfg.Bucket,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
		measurement,
	)

	queryAPI := c.client.QueryAPI(c.cfg.Org)
	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer result.Close()

	var points []EventPoint
	for result.Next() {
		rec := result.Record()
		points = append(points, EventPoint{
			Time:  rec.Time(),
			Field: rec.Field(),
			Value: rec.Value(),
			Tags:  recordTags(rec.Values()),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading query result: %w", err)
	}

	return points, nil
}

// recordTags extracts the tag set from a Flux record's value map.
// System columns (underscore-prefixed, result, table) are dropped.
func recordTags(values map[string]any) map[string]string {
	tags := make(map[string]string)
	for key, value := range values {
		if strings.HasPrefix(key, "_") || key == "result" || key == "table" {
			continue
		}
		if s, ok := value.(string); ok {
			tags[key] = s
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
