// Package mdns discovers network services via mDNS/DNS-SD and feeds them
// into the discovery pipeline as candidate things.
//
// The scanner browses a configurable service type (default "_hearth._tcp")
// and converts each announcement into a result of type "mdns:service". The
// sanitised instance name forms the UID; host, port, address and TXT records
// become properties, with the instance name as representation property.
//
// Active scans run one browse round. Background discovery re-browses on a
// fixed interval so devices that join the network later are still found.
package mdns
