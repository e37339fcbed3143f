package rules

import (
	"context"
	"strings"
	"testing"
	"time"
)

// mockActions records inbox actions invoked from scripts.
type mockActions struct {
	approved chan string
	ignored  chan string
}

func newMockActions() *mockActions {
	return &mockActions{
		approved: make(chan string, 8),
		ignored:  make(chan string, 8),
	}
}

func (m *mockActions) ApproveInboxEntry(uid string) error {
	m.approved <- uid
	return nil
}

func (m *mockActions) IgnoreInboxEntry(uid string) error {
	m.ignored <- uid
	return nil
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func newTestEngine(t *testing.T, actions Actions, rulesToLoad ...*Rule) *Engine {
	t.Helper()
	reg := NewRegistry(NewMockRepository())
	for _, r := range rulesToLoad {
		if err := reg.Create(context.Background(), r); err != nil {
			t.Fatalf("creating rule %q: %v", r.Name, err)
		}
	}

	engine := NewEngine(reg, actions, 2*time.Second)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(engine.Stop)
	return engine
}

func TestEngine_DispatchInvokesHandler(t *testing.T) {
	actions := newMockActions()

	rule := validRule()
	rule.LuaSource = `
		function on_event(event)
			hearth.approve(event.uid)
		end`

	engine := newTestEngine(t, actions, rule)

	engine.Dispatch(Event{Type: "inbox.added", Data: map[string]any{"uid": "hue:bulb:a"}})
	waitFor(t, actions.approved, "hue:bulb:a")
}

func TestEngine_DispatchFiltersOnPattern(t *testing.T) {
	actions := newMockActions()

	rule := validRule()
	rule.TriggerPattern = "inbox.*"
	rule.LuaSource = `
		function on_event(event)
			hearth.ignore(event.uid)
		end`

	engine := newTestEngine(t, actions, rule)

	engine.Dispatch(Event{Type: "thing.added", Data: map[string]any{"uid": "hue:bulb:a"}})
	engine.Dispatch(Event{Type: "inbox.removed", Data: map[string]any{"uid": "hue:bulb:b"}})

	// Only the inbox event should get through.
	waitFor(t, actions.ignored, "hue:bulb:b")
	select {
	case got := <-actions.ignored:
		t.Errorf("unexpected extra action for %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngine_SourceWithoutHandlerRunsPerEvent(t *testing.T) {
	actions := newMockActions()

	rule := validRule()
	rule.LuaSource = `
		if event then
			hearth.approve(event.uid)
		end`

	engine := newTestEngine(t, actions, rule)

	engine.Dispatch(Event{Type: "inbox.added", Data: map[string]any{"uid": "hue:bulb:c"}})
	waitFor(t, actions.approved, "hue:bulb:c")
}

func TestEngine_DisabledRuleNotLoaded(t *testing.T) {
	rule := validRule()
	rule.Enabled = false

	engine := newTestEngine(t, nil, rule)
	if engine.Running() != 0 {
		t.Errorf("Running() = %d, want 0 for disabled rule", engine.Running())
	}
}

func TestEngine_ReloadRule(t *testing.T) {
	rule := validRule()
	engine := newTestEngine(t, nil, rule)
	if engine.Running() != 1 {
		t.Fatalf("Running() = %d, want 1", engine.Running())
	}

	if err := engine.registry.SetEnabled(context.Background(), rule.ID, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if err := engine.ReloadRule(context.Background(), rule.ID); err != nil {
		t.Fatalf("ReloadRule() error = %v", err)
	}
	if engine.Running() != 0 {
		t.Errorf("Running() = %d after disabling, want 0", engine.Running())
	}
}

func TestEngine_RunSource_CapturesLogs(t *testing.T) {
	engine := NewEngine(NewRegistry(NewMockRepository()), nil, 2*time.Second)

	result := engine.RunSource(`hearth.log("first") hearth.log("second")`)
	if !result.OK {
		t.Fatalf("RunSource() error = %q", result.Error)
	}
	if len(result.Logs) != 2 || result.Logs[0] != "first" || result.Logs[1] != "second" {
		t.Errorf("Logs = %v, want [first second]", result.Logs)
	}
}

func TestEngine_RunSource_InvokesHandler(t *testing.T) {
	engine := NewEngine(NewRegistry(NewMockRepository()), nil, 2*time.Second)

	result := engine.RunSource(`
		function on_event(event)
			hearth.log("got " .. event.type)
		end`)
	if !result.OK {
		t.Fatalf("RunSource() error = %q", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "got test" {
		t.Errorf("Logs = %v, want [got test]", result.Logs)
	}
}

func TestEngine_RunSource_SyntaxError(t *testing.T) {
	engine := NewEngine(NewRegistry(NewMockRepository()), nil, 2*time.Second)

	result := engine.RunSource(`this is not lua`)
	if result.OK {
		t.Fatal("RunSource() OK = true for invalid source")
	}
	if result.Error == "" {
		t.Error("RunSource() returned empty error")
	}
}

func TestEngine_RunSource_Timeout(t *testing.T) {
	engine := NewEngine(NewRegistry(NewMockRepository()), nil, 200*time.Millisecond)

	result := engine.RunSource(`while true do end`)
	if result.OK {
		t.Fatal("RunSource() OK = true for runaway script")
	}
	if !strings.Contains(result.Error, "timeout") {
		t.Errorf("Error = %q, want timeout", result.Error)
	}
}

func TestEngine_SandboxBlocksOS(t *testing.T) {
	engine := NewEngine(NewRegistry(NewMockRepository()), nil, 2*time.Second)

	result := engine.RunSource(`os.execute("true")`)
	if result.OK {
		t.Fatal("RunSource() OK = true for os access")
	}
}
