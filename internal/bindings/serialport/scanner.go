package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// BindingID is the identifier of the serial port discovery binding.
const BindingID = "serialport"

// ThingTypeGateway is the thing type produced for discovered serial ports.
// A port is a candidate gateway (Zigbee stick, KNX interface, modem) until
// the operator decides what is attached to it.
var ThingTypeGateway = discovery.NewThingTypeUID(BindingID, "gateway")

// DefaultResultTTLSecs bounds how long a port result stays valid. USB
// serial adapters come and go, so results expire rather than linger.
const DefaultResultTTLSecs int64 = 300

// listPorts enumerates serial ports. Overridable for tests.
var listPorts = serial.GetPortsList

// Config configures the serial port scanner.
type Config struct {
	// ResultTTLSecs is the TTL assigned to produced results.
	// Defaults to DefaultResultTTLSecs when zero.
	ResultTTLSecs int64
}

// Scanner discovers serial ports attached to the host.
//
// Port enumeration is a quick OS query, so scans run synchronously and
// there is no background mode.
type Scanner struct {
	resultTTL int64
}

// NewScanner creates a serial port scanner.
func NewScanner(cfg Config) *Scanner {
	if cfg.ResultTTLSecs <= 0 {
		cfg.ResultTTLSecs = DefaultResultTTLSecs
	}
	return &Scanner{resultTTL: cfg.ResultTTLSecs}
}

// StartScan enumerates serial ports and publishes one result per port.
func (s *Scanner) StartScan(p discovery.Publisher) error {
	ports, err := listPorts()
	if err != nil {
		return fmt.Errorf("serialport: listing ports: %w", err)
	}

	for _, port := range ports {
		if result := s.toResult(port); result != nil {
			p.ThingDiscovered(result)
		}
	}
	return nil
}

// toResult converts a port path to a discovery result.
func (s *Scanner) toResult(port string) *discovery.Result {
	id := sanitizeSegment(port)
	if id == "" {
		return nil
	}

	result, err := discovery.NewResultBuilder(discovery.NewThingUID(ThingTypeGateway, id)).
		WithThingType(ThingTypeGateway).
		WithLabel("Serial port " + port).
		WithProperty("port", port).
		WithRepresentationProperty("port").
		WithTTL(s.resultTTL).
		Build()
	if err != nil {
		return nil
	}
	return result
}

// sanitizeSegment maps a port path to a valid UID segment. Path separators
// and other punctuation collapse to hyphens: "/dev/ttyUSB0" -> "dev-ttyusb0".
func sanitizeSegment(port string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(port) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
