// Package thing provides the Thing Registry for Hearth Core.
//
// A thing is a registered device or service the hub talks to. The registry
// is the canonical catalogue of things; entries arrive either by approving
// a discovery result from the inbox or directly through the REST API.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                          Thing Registry                             │
//	│                                                                     │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────┐  │
//	│  │     Registry     │    │    Repository    │    │     Links    │  │
//	│  │  (registry.go)   │───▶│ (repository.go)  │    │(link_repo...)│  │
//	│  │                  │    │                  │    │              │  │
//	│  │ • CRUD ops       │    │ • SQLite queries │    │ • item↔chan  │  │
//	│  │ • In-memory cache│    │ • JSON marshal   │    │   bindings   │  │
//	│  │ • Change events  │    │                  │    │              │  │
//	│  └──────────────────┘    └──────────────────┘    └──────────────┘  │
//	│           │ ChangeListener                                          │
//	└───────────│─────────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│        Inbox         │  thing added   → evict matching inbox entry
//	│ (change listener)    │  bridge removed→ drop its discovery results
//	└──────────────────────┘
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex; returned values are deep copies.
package thing
