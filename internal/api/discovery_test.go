package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// ─── Discovery Service Tests ───────────────────────────────────────

func TestListDiscoveryServices(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/discovery/services", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Services []discoveryServiceInfo `json:"services"`
		Count    int                    `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Services[0].ID != "test" {
		t.Errorf("id = %q, want test", resp.Services[0].ID)
	}
	if len(resp.Services[0].ThingTypes) != 1 || resp.Services[0].ThingTypes[0] != "test:device" {
		t.Errorf("thing types = %v, want [test:device]", resp.Services[0].ThingTypes)
	}
}

func TestGetDiscoveryService(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/discovery/services/test", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var info discoveryServiceInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.ID != "test" {
		t.Errorf("id = %q, want test", info.ID)
	}
	if info.SupportsInput {
		t.Error("test scanner does not support input")
	}
}

func TestGetDiscoveryService_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/discovery/services/bogus", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStartScan(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/services/test/scan", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	// The test scanner publishes synchronously, so the result is cached
	// by the time the response is written.
	svc, err := env.discovery.Service("test")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	results := svc.CachedResults()
	if len(results) != 1 {
		t.Fatalf("cached results = %d, want 1", len(results))
	}
	if results[0].ThingUID != "test:device:unit-1" {
		t.Errorf("result uid = %s, want test:device:unit-1", results[0].ThingUID)
	}
}

func TestScanResults(t *testing.T) {
	env := testServer(t)

	if w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/services/test/scan", ""); w.Code != http.StatusAccepted {
		t.Fatalf("scan status = %d", w.Code)
	}

	w := env.doAuthed(t, http.MethodGet, "/api/v1/discovery/services/test/results", "")
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d", w.Code)
	}

	var resp struct {
		Results []discovery.Result `json:"results"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestScanAll(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/scan", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
}

func TestAbortScans(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/abort", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAbortServiceScan(t *testing.T) {
	env := testServer(t)

	if w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/services/test/scan", ""); w.Code != http.StatusAccepted {
		t.Fatalf("scan status = %d", w.Code)
	}

	svc, err := env.discovery.Service("test")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if !svc.ScanInProgress() {
		t.Fatal("expected a scan in progress before the abort")
	}

	w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/services/test/abort", "")
	if w.Code != http.StatusOK {
		t.Fatalf("abort status = %d, body: %s", w.Code, w.Body.String())
	}
	if svc.ScanInProgress() {
		t.Error("expected the scan to be aborted")
	}
}

func TestAbortServiceScan_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/discovery/services/bogus/abort", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSetBackgroundDiscovery_NotSupported(t *testing.T) {
	env := testServer(t)

	// The test scanner does not implement background discovery; enabling
	// it records the preference without starting anything.
	w := env.doAuthed(t, http.MethodPut, "/api/v1/discovery/services/test/background",
		`{"enabled": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	svc, err := env.discovery.Service("test")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if !svc.BackgroundDiscoveryEnabled() {
		t.Error("expected background discovery preference to be recorded")
	}
}

func TestSetBackgroundDiscovery_BadBody(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPut, "/api/v1/discovery/services/test/background", "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
