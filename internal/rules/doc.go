// Package rules provides Lua-scripted automation for Hearth Core.
//
// A rule pairs a trigger pattern ("inbox.added", "thing.*", "*") with a
// Lua script. The engine runs each enabled rule in its own sandboxed VM
// and feeds it matching hub events.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                           Rule Engine                               │
//	│                                                                     │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────┐  │
//	│  │     Registry     │    │      Engine      │    │  Repository  │  │
//	│  │  (registry.go)   │◀───│   (engine.go)    │    │(repository...│  │
//	│  │                  │    │                  │    │              │  │
//	│  │ • CRUD + cache   │    │ • One VM / rule  │    │ • SQLite     │  │
//	│  │ • Validation     │    │ • Event dispatch │    │ • tags JSON  │  │
//	│  │                  │    │ • Exec timeout   │    │              │  │
//	│  └──────────────────┘    └──────────────────┘    └──────────────┘  │
//	│                                   ▲                                 │
//	└───────────────────────────────────│─────────────────────────────────┘
//	                                    │ Dispatch(Event)
//	                  inbox / thing / discovery events
//
// Scripts define an on_event(event) function, or are executed whole per
// event with the event available as a global. The "hearth" module exposes
// log, approve and ignore.
//
// # Thread Safety
//
// All public methods are thread-safe. Each VM's Lua state is only touched
// from its command-loop goroutine.
package rules
