package mdns

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// fakeBrowser feeds canned entries to the scanner and closes the channel.
type fakeBrowser struct {
	entries []*zeroconf.ServiceEntry
	err     error
}

func (f *fakeBrowser) Browse(_ context.Context, _, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if f.err != nil {
		return f.err
	}
	go func() {
		for _, e := range f.entries {
			entries <- e
		}
		close(entries)
	}()
	return nil
}

// capturePublisher records published results.
type capturePublisher struct {
	mu      sync.Mutex
	results []*discovery.Result
	done    chan struct{}
	want    int
}

func newCapturePublisher(want int) *capturePublisher {
	return &capturePublisher{done: make(chan struct{}), want: want}
}

func (c *capturePublisher) ThingDiscovered(result *discovery.Result) {
	c.mu.Lock()
	c.results = append(c.results, result)
	if len(c.results) == c.want {
		close(c.done)
	}
	c.mu.Unlock()
}

func (c *capturePublisher) ThingRemoved(discovery.ThingUID) {}

func (c *capturePublisher) wait(t *testing.T) []*discovery.Result {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for results")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

func withFakeBrowser(t *testing.T, fake browser) {
	t.Helper()
	orig := newBrowser
	newBrowser = func() (browser, error) { return fake, nil }
	t.Cleanup(func() { newBrowser = orig })
}

func serviceEntry(instance string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  "_hearth._tcp",
			Domain:   "local.",
		},
		HostName: "bulb.local.",
		Port:     8080,
		Text:     []string{"model=A19", "fw=1.2.3", "bare"},
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.40")},
	}
}

func TestStartScan_PublishesResults(t *testing.T) {
	withFakeBrowser(t, &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		serviceEntry("Kitchen Bulb"),
		serviceEntry("Hallway Sensor"),
	}})

	scanner := NewScanner(Config{})
	pub := newCapturePublisher(2)

	if err := scanner.StartScan(pub); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	results := pub.wait(t)
	if results[0].ThingUID != "mdns:service:kitchen-bulb" {
		t.Errorf("ThingUID = %q, want mdns:service:kitchen-bulb", results[0].ThingUID)
	}
	if results[0].Label != "Kitchen Bulb" {
		t.Errorf("Label = %q, want Kitchen Bulb", results[0].Label)
	}
	if results[0].RepresentationProperty != "name" {
		t.Errorf("RepresentationProperty = %q, want name", results[0].RepresentationProperty)
	}
	if results[0].Properties["address"] != "192.168.1.40" {
		t.Errorf("address = %v, want 192.168.1.40", results[0].Properties["address"])
	}
	if results[0].Properties["txt.model"] != "A19" {
		t.Errorf("txt.model = %v, want A19", results[0].Properties["txt.model"])
	}
	if results[0].TTL != DefaultResultTTLSecs {
		t.Errorf("TTL = %d, want %d", results[0].TTL, DefaultResultTTLSecs)
	}
}

func TestStartScan_ResolverError(t *testing.T) {
	orig := newBrowser
	newBrowser = func() (browser, error) { return nil, errors.New("no multicast interface") }
	t.Cleanup(func() { newBrowser = orig })

	scanner := NewScanner(Config{})
	if err := scanner.StartScan(newCapturePublisher(0)); err == nil {
		t.Fatal("StartScan() error = nil, want resolver error")
	}
}

func TestStartScan_BrowseError(t *testing.T) {
	withFakeBrowser(t, &fakeBrowser{err: errors.New("browse failed")})

	scanner := NewScanner(Config{})
	if err := scanner.StartScan(newCapturePublisher(0)); err == nil {
		t.Fatal("StartScan() error = nil, want browse error")
	}
}

func TestToResult_DropsUnusableEntries(t *testing.T) {
	scanner := NewScanner(Config{})

	if got := scanner.toResult(nil); got != nil {
		t.Errorf("toResult(nil) = %v, want nil", got)
	}

	entry := serviceEntry("!!!")
	if got := scanner.toResult(entry); got != nil {
		t.Errorf("toResult() = %v for unusable instance name, want nil", got)
	}
}

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kitchen Bulb", "kitchen-bulb"},
		{"shelly1-AB12CD", "shelly1-ab12cd"},
		{"Büro Lampe", "b-ro-lampe"},
		{"--weird--", "weird"},
		{"...", ""},
		{"plain", "plain"},
		{"under_score", "under_score"},
	}

	for _, tt := range tests {
		if got := sanitizeSegment(tt.in); got != tt.want {
			t.Errorf("sanitizeSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTXT(t *testing.T) {
	txt := parseTXT([]string{"model=A19", "flag", "", "path=/api"})
	if txt["model"] != "A19" {
		t.Errorf("model = %q, want A19", txt["model"])
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q (present %v), want empty present", v, ok)
	}
	if txt["path"] != "/api" {
		t.Errorf("path = %q, want /api", txt["path"])
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}

	if parseTXT(nil) != nil {
		t.Error("parseTXT(nil) should be nil")
	}
}

func TestBackground_StartStop(t *testing.T) {
	withFakeBrowser(t, &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		serviceEntry("BG Device"),
	}})

	scanner := NewScanner(Config{RebrowseInterval: 50 * time.Millisecond})
	pub := newCapturePublisher(1)

	if err := scanner.StartBackground(pub); err != nil {
		t.Fatalf("StartBackground() error = %v", err)
	}
	pub.wait(t)

	if err := scanner.StopBackground(); err != nil {
		t.Errorf("StopBackground() error = %v", err)
	}
	// Second stop is a no-op.
	if err := scanner.StopBackground(); err != nil {
		t.Errorf("second StopBackground() error = %v", err)
	}
}

func TestScannerImplementsDiscoveryInterfaces(t *testing.T) {
	var s any = NewScanner(Config{})
	if _, ok := s.(discovery.Scanner); !ok {
		t.Error("Scanner does not implement discovery.Scanner")
	}
	if _, ok := s.(discovery.StoppableScanner); !ok {
		t.Error("Scanner does not implement discovery.StoppableScanner")
	}
	if _, ok := s.(discovery.BackgroundScanner); !ok {
		t.Error("Scanner does not implement discovery.BackgroundScanner")
	}
}
