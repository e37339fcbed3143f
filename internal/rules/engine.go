package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Event is a hub event delivered to rule scripts, e.g. an inbox entry
// arriving or a thing being registered.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Actions is the surface rule scripts act through. Implementations are
// provided at wiring time; a nil Actions makes the action functions
// report an error to the script.
type Actions interface {
	// ApproveInboxEntry promotes an inbox entry to a registered thing.
	ApproveInboxEntry(thingUID string) error

	// IgnoreInboxEntry flags an inbox entry as ignored.
	IgnoreInboxEntry(thingUID string) error
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// handlerGlobal is the function a script defines to receive events.
// Scripts without it have their whole source run per event, with the
// event available as a global.
const handlerGlobal = "on_event"

// ruleVM is a running Lua VM for a single rule.
type ruleVM struct {
	rule     *Rule
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handler  *lua.LFunction         // on_event, nil when the source is the handler
	ctx      context.Context
	cancel   context.CancelFunc
}

// Engine runs enabled rules in sandboxed Lua VMs and dispatches hub
// events to them. Each rule owns one VM; a command channel serializes
// all access to the Lua state.
type Engine struct {
	registry    *Registry
	actions     Actions
	execTimeout time.Duration
	logger      Logger

	mu  sync.Mutex
	vms map[string]*ruleVM
}

// NewEngine creates a new rule engine. execTimeout bounds a single
// handler invocation; a runaway script is cut off and its VM restarted.
func NewEngine(registry *Registry, actions Actions, execTimeout time.Duration) *Engine {
	if execTimeout <= 0 {
		execTimeout = 10 * time.Second
	}
	return &Engine{
		registry:    registry,
		actions:     actions,
		execTimeout: execTimeout,
		logger:      noopLogger{},
		vms:         make(map[string]*ruleVM),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Start loads all enabled rules into VMs.
func (e *Engine) Start(ctx context.Context) error {
	all, err := e.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing rules: %w", err)
	}

	started := 0
	for i := range all {
		rule := all[i]
		if !rule.Enabled {
			continue
		}
		if err := e.startRule(&rule); err != nil {
			e.logger.Error("starting rule", "id", rule.ID, "name", rule.Name, "error", err)
			continue
		}
		started++
	}

	e.logger.Info("rule engine started", "rules", started)
	return nil
}

// Stop cancels all rule VMs.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("rule engine stopped")
}

// ReloadRule stops the rule's VM (if any) and starts a new one when the
// rule is enabled. Call after create/update/enable/disable.
func (e *Engine) ReloadRule(ctx context.Context, id string) error {
	e.stopRule(id)

	rule, err := e.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rule.Enabled {
		return nil
	}
	return e.startRule(rule)
}

// StopRule stops a running rule VM.
func (e *Engine) StopRule(id string) {
	e.stopRule(id)
}

// Running returns the number of loaded rule VMs.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vms)
}

// Dispatch routes an event to every rule whose trigger pattern matches.
// Delivery is asynchronous; a full command channel drops the event for
// that rule with a warning.
func (e *Engine) Dispatch(event Event) {
	e.mu.Lock()
	matched := make([]*ruleVM, 0, len(e.vms))
	for _, vm := range e.vms {
		if MatchPattern(vm.rule.TriggerPattern, event.Type) {
			matched = append(matched, vm)
		}
	}
	e.mu.Unlock()

	for _, vm := range matched {
		vm := vm
		select {
		case <-vm.ctx.Done():
		case vm.commands <- func(L *lua.LState) {
			e.invokeHandler(vm, L, event)
		}:
		default:
			e.logger.Warn("rule command channel full, dropping event",
				"rule_id", vm.rule.ID, "event", event.Type)
		}
	}
}

// RunSource executes Lua code in a temporary sandboxed VM and captures
// its log output. Used by the API's rule test endpoint. If the code
// defines on_event, the handler is invoked once with a synthetic event.
func (e *Engine) RunSource(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.execTimeout)
	defer cancel()

	L := lua.NewState()
	defer L.Close()
	sandbox(L)
	L.SetContext(ctx)

	var logs []string
	var logMu sync.Mutex
	e.registerHearthModule(L, func(msg string) {
		logMu.Lock()
		logs = append(logs, msg)
		logMu.Unlock()
	})

	if err := L.DoString(code); err != nil {
		return &RunResult{OK: false, Error: timeoutMessage(err), Logs: logs,
			Duration: time.Since(start).String()}
	}

	if fn, ok := L.GetGlobal(handlerGlobal).(*lua.LFunction); ok {
		eventTable := L.NewTable()
		eventTable.RawSetString("type", lua.LString("test"))
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable); err != nil {
			return &RunResult{OK: false, Error: timeoutMessage(err), Logs: logs,
				Duration: time.Since(start).String()}
		}
	}

	return &RunResult{OK: true, Logs: logs, Duration: time.Since(start).String()}
}

func (e *Engine) startRule(rule *Rule) error {
	ctx, cancel := context.WithCancel(context.Background())

	L := lua.NewState()
	sandbox(L)
	e.registerHearthModule(L, nil)

	// Run the top level once so the script can define on_event.
	if err := L.DoString(rule.LuaSource); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("loading rule %s: %w", rule.ID, err)
	}

	vm := &ruleVM{
		rule:     rule,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	if fn, ok := L.GetGlobal(handlerGlobal).(*lua.LFunction); ok {
		vm.handler = fn
	}

	e.mu.Lock()
	e.vms[rule.ID] = vm
	e.mu.Unlock()

	// Command loop goroutine, exits when the VM is cancelled.
	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("rule loaded", "id", rule.ID, "name", rule.Name,
		"pattern", rule.TriggerPattern)
	return nil
}

func (e *Engine) stopRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("rule unloaded", "id", id)
	}
}

// invokeHandler runs one event through a rule VM with the execution
// timeout applied. A timed-out VM is restarted, since an interrupted
// Lua state cannot be trusted to run again.
func (e *Engine) invokeHandler(vm *ruleVM, L *lua.LState, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule handler panicked", "rule_id", vm.rule.ID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(vm.ctx, e.execTimeout)
	defer cancel()
	L.SetContext(ctx)

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))
	for k, v := range event.Data {
		eventTable.RawSetString(k, goToLua(L, v))
	}

	var err error
	if vm.handler != nil {
		err = L.CallByParam(lua.P{Fn: vm.handler, NRet: 0, Protect: true}, eventTable)
	} else {
		L.SetGlobal("event", eventTable)
		err = L.DoString(vm.rule.LuaSource)
	}

	if err != nil {
		e.logger.Error("rule handler failed", "rule_id", vm.rule.ID,
			"event", event.Type, "error", timeoutMessage(err))
		if ctx.Err() != nil {
			go func(id string) {
				if rerr := e.ReloadRule(context.Background(), id); rerr != nil {
					e.logger.Error("restarting timed-out rule", "rule_id", id, "error", rerr)
				}
			}(vm.rule.ID)
		}
	}
}

// registerHearthModule installs the "hearth" table: log plus the inbox
// actions. logSink, when non-nil, also receives log lines (used by
// RunSource to capture output).
func (e *Engine) registerHearthModule(L *lua.LState, logSink func(string)) {
	mod := L.NewTable()

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		e.logger.Info("rule log", "msg", msg)
		if logSink != nil {
			logSink(msg)
		}
		return 0
	}))

	mod.RawSetString("approve", L.NewFunction(func(L *lua.LState) int {
		uid := L.CheckString(1)
		if e.actions == nil {
			L.Push(lua.LString("actions unavailable"))
			return 1
		}
		if err := e.actions.ApproveInboxEntry(uid); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))

	mod.RawSetString("ignore", L.NewFunction(func(L *lua.LState) int {
		uid := L.CheckString(1)
		if e.actions == nil {
			L.Push(lua.LString("actions unavailable"))
			return 1
		}
		if err := e.actions.IgnoreInboxEntry(uid); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))

	L.SetGlobal("hearth", mod)
}

// sandbox removes libraries that reach outside the VM.
func sandbox(L *lua.LState) {
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// timeoutMessage rewrites context-deadline errors into a readable form.
func timeoutMessage(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") {
		return "execution timeout"
	}
	return msg
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
