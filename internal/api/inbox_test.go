package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/inbox"
	"github.com/hearth-home/hearth-core/internal/thing"
)

// seedInbox adds a result to the inbox directly.
func seedInbox(t *testing.T, env *testEnv, uid string) {
	t.Helper()
	if err := env.inbox.Add(context.Background(), testResult(t, uid), "test"); err != nil {
		t.Fatalf("seeding inbox: %v", err)
	}
}

// ─── Inbox List/Get Tests ──────────────────────────────────────────

func TestListInbox_Empty(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox", "")
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

func TestListInbox_WithEntries(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")
	seedInbox(t, env, "test:device:two")

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Entries []inbox.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

func TestListInbox_FlagFilter(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")
	seedInbox(t, env, "test:device:two")

	if err := env.inbox.SetFlag(context.Background(), "test:device:two", discovery.FlagIgnored); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox?flag=ignored", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Entries []inbox.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Entries[0].Result.ThingUID != "test:device:two" {
		t.Errorf("entry = %s, want test:device:two", resp.Entries[0].Result.ThingUID)
	}
}

func TestListInbox_BadFlag(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox?flag=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetInboxEntry(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox/test:device:one", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var entry inbox.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Result.ThingUID != "test:device:one" {
		t.Errorf("thing uid = %s, want test:device:one", entry.Result.ThingUID)
	}
	if entry.Result.Label != "Test Device" {
		t.Errorf("label = %q, want %q", entry.Result.Label, "Test Device")
	}
}

func TestGetInboxEntry_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodGet, "/api/v1/inbox/test:device:missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Inbox Lifecycle Tests ─────────────────────────────────────────

func TestApproveInboxEntry(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")

	w := env.doAuthed(t, http.MethodPost, "/api/v1/inbox/test:device:one/approve",
		`{"label":"Kitchen Device"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var created thing.Thing
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.UID != "test:device:one" {
		t.Errorf("uid = %s, want test:device:one", created.UID)
	}
	if created.Label != "Kitchen Device" {
		t.Errorf("label = %q, want %q", created.Label, "Kitchen Device")
	}

	// Approved entry leaves the inbox.
	if _, err := env.inbox.Get("test:device:one"); err == nil {
		t.Error("expected entry to be gone after approval")
	}

	// And the thing is registered.
	if !env.things.Exists(context.Background(), "test:device:one") {
		t.Error("expected thing to be registered after approval")
	}
}

func TestApproveInboxEntry_NewThingID(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")

	w := env.doAuthed(t, http.MethodPost, "/api/v1/inbox/test:device:one/approve",
		`{"thing_id":"kitchen-main"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var created thing.Thing
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.UID != "test:device:kitchen-main" {
		t.Errorf("uid = %s, want test:device:kitchen-main", created.UID)
	}
}

func TestApproveInboxEntry_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodPost, "/api/v1/inbox/test:device:missing/approve", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestIgnoreAndUnignore(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")

	w := env.doAuthed(t, http.MethodPost, "/api/v1/inbox/test:device:one/ignore", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ignore status = %d, body: %s", w.Code, w.Body.String())
	}

	entry, err := env.inbox.Get("test:device:one")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Result.Flag != discovery.FlagIgnored {
		t.Errorf("flag = %s, want IGNORED", entry.Result.Flag)
	}

	w = env.doAuthed(t, http.MethodPost, "/api/v1/inbox/test:device:one/unignore", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unignore status = %d", w.Code)
	}

	entry, err = env.inbox.Get("test:device:one")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Result.Flag != discovery.FlagNew {
		t.Errorf("flag = %s, want NEW", entry.Result.Flag)
	}
}

func TestDeleteInboxEntry(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")

	w := env.doAuthed(t, http.MethodDelete, "/api/v1/inbox/test:device:one", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	if env.inbox.Count() != 0 {
		t.Errorf("inbox count = %d, want 0", env.inbox.Count())
	}
}

func TestDeleteInboxEntry_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.doAuthed(t, http.MethodDelete, "/api/v1/inbox/test:device:missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestClearInbox(t *testing.T) {
	env := testServer(t)
	seedInbox(t, env, "test:device:one")
	seedInbox(t, env, "test:device:two")

	w := env.doAuthed(t, http.MethodDelete, "/api/v1/inbox", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Removed != 2 {
		t.Errorf("removed = %d, want 2", resp.Removed)
	}
	if env.inbox.Count() != 0 {
		t.Errorf("inbox count = %d after clear, want 0", env.inbox.Count())
	}
}
