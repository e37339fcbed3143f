// Package discovery implements device discovery for Hearth Core.
//
// A discovery Service wraps one binding's scanner (mDNS, serial, MQTT
// announce, ...), drives its active scans and background discovery, and
// fans produced results out to listeners. The Registry aggregates all
// services so consumers such as the inbox subscribe once.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                         Discovery                                     │
//	│                                                                       │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌────────────────┐  │
//	│  │     Registry     │    │     Service      │    │    Scanner     │  │
//	│  │  (registry.go)   │───▶│   (service.go)   │───▶│  (per binding) │  │
//	│  │                  │    │                  │    │                │  │
//	│  │ • Service lookup │    │ • Scan lifecycle │    │ • mDNS browse  │  │
//	│  │ • Listener fwd   │    │ • Result cache   │    │ • Serial enum  │  │
//	│  │ • Scan-all       │    │ • Listener fanout│    │ • MQTT announce│  │
//	│  └──────────────────┘    └──────────────────┘    └────────────────┘  │
//	│           │                       │                                   │
//	└───────────│───────────────────────│───────────────────────────────────┘
//	            │                       │ Result
//	            ▼                       ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│      REST API        │   │        Inbox         │
//	│ • POST .../scan      │   │ (discovery.Listener) │
//	│ • GET /discovery     │   └──────────────────────┘
//	└──────────────────────┘
//
// # Key Types
//
//   - Result: a candidate thing found by a scan, identified by its ThingUID
//   - ResultBuilder: fluent construction with validation at Build
//   - Service: scan state machine and result fan-out for one binding
//   - Scanner / InputScanner / StoppableScanner / BackgroundScanner: the
//     hooks a binding implements
//   - Listener: consumer of results (the inbox, the event hub)
//   - Scheduler: injectable timer used for the automatic scan stop
//
// # Scan Lifecycle
//
// StartScan stops any in-flight scan (its listener receives OnFinished
// first), schedules the automatic stop when a scan timeout is configured,
// and invokes the scanner. AbortScan delivers ErrScanAborted through the
// scan listener's OnError. A failed scanner start rolls the service back
// to idle and returns the error.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Scan state, the result
// cache and the listener set are guarded independently; listener callbacks
// are invoked without holding the scan lock and with per-listener panic
// recovery.
package discovery
