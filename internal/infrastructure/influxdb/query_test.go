package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearth-home/hearth-core/internal/infrastructure/influxdb"
)

// ─── Query Tests (integration) ─────────────────────────────────────

func TestQueryEvents_NotConnected(t *testing.T) {
	var client *influxdb.Client

	_, err := client.QueryEvents(context.Background(), "inbox_events",
		time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestQueryEvents_InvalidMeasurement(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	_, err = client.QueryEvents(context.Background(), "secret_table",
		time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, influxdb.ErrInvalidMeasurement) {
		t.Errorf("err = %v, want ErrInvalidMeasurement", err)
	}
}

func TestQueryEvents_RoundTrip(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	client.WriteInboxEvent("added", "test:device:query-roundtrip", "NEW")
	client.Flush()

	// Batched writes land asynchronously even after Flush.
	deadline := time.Now().Add(5 * time.Second)
	for {
		events, err := client.QueryEvents(context.Background(), "inbox_events",
			time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("QueryEvents: %v", err)
		}

		found := false
		for _, e := range events {
			if e.Field == "thing_uid" && e.Value == "test:device:query-roundtrip" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("written event never appeared in query results")
		}
		time.Sleep(200 * time.Millisecond)
	}
}
