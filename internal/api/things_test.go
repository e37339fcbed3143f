package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/hearth-home/hearth-core/internal/thing"
)

// ─── Thing CRUD Tests ──────────────────────────────────────────────

func TestListThings_Empty(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/things", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestCreateAndGetThing(t *testing.T) {
	env := testServer(t)

	body := `{
		"uid": "test:device:kitchen",
		"thing_type_uid": "test:device",
		"label": "Kitchen Device",
		"properties": {"serial": "SN-9"},
		"config": {"poll_interval": 30}
	}`

	w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}

	var created thing.Thing
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if !created.Enabled {
		t.Error("expected created thing to be enabled")
	}

	w = env.doAuthed(t, http.MethodGet, "/api/v1/things/test:device:kitchen", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	var got thing.Thing
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal got: %v", err)
	}
	if got.Label != "Kitchen Device" {
		t.Errorf("label = %q, want %q", got.Label, "Kitchen Device")
	}
	if got.Properties["serial"] != "SN-9" {
		t.Errorf("serial = %v, want SN-9", got.Properties["serial"])
	}
}

func TestCreateThing_Invalid(t *testing.T) {
	env := testServer(t)

	// Type binding does not match UID binding.
	body := `{"uid": "test:device:kitchen", "thing_type_uid": "other:device", "label": "X"}`
	w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateThing_Duplicate(t *testing.T) {
	env := testServer(t)

	body := `{"uid": "test:device:kitchen", "thing_type_uid": "test:device", "label": "X"}`
	w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", w.Code)
	}

	w = env.doAuthed(t, http.MethodPost, "/api/v1/things", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestGetThing_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/things/test:device:missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateThing(t *testing.T) {
	env := testServer(t)

	body := `{"uid": "test:device:kitchen", "thing_type_uid": "test:device", "label": "Old"}`
	if w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w := env.doAuthed(t, http.MethodPatch, "/api/v1/things/test:device:kitchen",
		`{"label": "New", "config": {"zone": "kitchen"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body: %s", w.Code, w.Body.String())
	}

	var got thing.Thing
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Label != "New" {
		t.Errorf("label = %q, want New", got.Label)
	}
	if got.Config["zone"] != "kitchen" {
		t.Errorf("config zone = %v, want kitchen", got.Config["zone"])
	}
}

func TestDeleteThing(t *testing.T) {
	env := testServer(t)

	body := `{"uid": "test:device:kitchen", "thing_type_uid": "test:device", "label": "X"}`
	if w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w := env.doAuthed(t, http.MethodDelete, "/api/v1/things/test:device:kitchen", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	if env.things.Exists(context.Background(), "test:device:kitchen") {
		t.Error("expected thing to be gone")
	}
}

func TestSetThingEnabled(t *testing.T) {
	env := testServer(t)

	body := `{"uid": "test:device:kitchen", "thing_type_uid": "test:device", "label": "X"}`
	if w := env.doAuthed(t, http.MethodPost, "/api/v1/things", body); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w := env.doAuthed(t, http.MethodPut, "/api/v1/things/test:device:kitchen/enabled",
		`{"enabled": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	got, err := env.things.Get(context.Background(), "test:device:kitchen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Enabled {
		t.Error("expected thing to be disabled")
	}
}

// ─── Link Tests ────────────────────────────────────────────────────

func TestCreateAndListLinks(t *testing.T) {
	env := testServer(t)

	body := `{
		"item_name": "Kitchen_Light",
		"channel_uid": "test:device:kitchen:brightness",
		"config": {"profile": "default"}
	}`

	w := env.doAuthed(t, http.MethodPost, "/api/v1/links", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}

	w = env.doAuthed(t, http.MethodGet, "/api/v1/links", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}

	var resp struct {
		Links []thing.Link `json:"links"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Links[0].ItemName != "Kitchen_Light" {
		t.Errorf("item = %q, want Kitchen_Light", resp.Links[0].ItemName)
	}
}

func TestCreateLink_MissingFields(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/links", `{"item_name": "Only_Item"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPutLink_ByPath(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPut,
		"/api/v1/links/Kitchen_Light/test:device:kitchen:brightness",
		`{"config": {"profile": "follow"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body: %s", w.Code, w.Body.String())
	}

	link, err := env.links.GetLink(context.Background(),
		"Kitchen_Light", "test:device:kitchen:brightness")
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if link.Config["profile"] != "follow" {
		t.Errorf("config profile = %v, want follow", link.Config["profile"])
	}
}

func TestGetAndDeleteLink(t *testing.T) {
	env := testServer(t)

	link := &thing.Link{
		ItemName:   "Kitchen_Light",
		ChannelUID: "test:device:kitchen:brightness",
		CreatedAt:  time.Now().UTC(),
	}
	if err := env.links.PutLink(context.Background(), link); err != nil {
		t.Fatalf("PutLink: %v", err)
	}

	w := env.doAuthed(t, http.MethodGet,
		"/api/v1/links/Kitchen_Light/test:device:kitchen:brightness", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body: %s", w.Code, w.Body.String())
	}

	w = env.doAuthed(t, http.MethodDelete,
		"/api/v1/links/Kitchen_Light/test:device:kitchen:brightness", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = env.doAuthed(t, http.MethodGet,
		"/api/v1/links/Kitchen_Light/test:device:kitchen:brightness", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
