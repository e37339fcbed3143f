// Package inbox holds discovery results awaiting operator action.
//
// Results flow in from discovery services, are deduplicated and merged by
// thing UID, and leave either by approval (promotion to a registered thing),
// by ignore/removal, or by TTL expiry.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                              Inbox                                  │
//	│                                                                     │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────┐  │
//	│  │      Inbox       │    │    Repository    │    │  TTL Janitor │  │
//	│  │   (inbox.go)     │───▶│ (repository.go)  │    │  (inbox.go)  │  │
//	│  │                  │    │                  │    │              │  │
//	│  │ • Add/merge      │    │ • SQLite rows    │    │ • Periodic   │  │
//	│  │ • Approve/ignore │    │ • JSON props     │    │   expiry     │  │
//	│  │ • Event fan-out  │    │                  │    │   sweep      │  │
//	│  └──────────────────┘    └──────────────────┘    └──────────────┘  │
//	│      ▲           ▲                                                  │
//	└──────│───────────│──────────────────────────────────────────────────┘
//	       │           │
//	┌──────────────┐ ┌──────────────────┐
//	│  Discovery   │ │  Thing Registry  │
//	│  (listener)  │ │ (change listener)│
//	└──────────────┘ └──────────────────┘
//
// The inbox participates in two listener contracts through adapter views:
// DiscoveryListener() feeds results in, ThingListener() evicts entries when
// a matching thing is registered and reacts to removed bridges.
//
// # Thread Safety
//
// All public methods are thread-safe. Entries are kept under a read-write
// mutex; listener fan-out happens outside the lock with per-listener panic
// isolation.
package inbox
