package mdns

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// BindingID is the identifier of the mDNS discovery binding.
const BindingID = "mdns"

// ThingTypeService is the thing type produced for discovered mDNS services.
var ThingTypeService = discovery.NewThingTypeUID(BindingID, "service")

// Defaults for the mDNS scanner.
const (
	// DefaultServiceType is browsed when no service type is configured.
	DefaultServiceType = "_hearth._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."

	// DefaultRebrowseInterval is how often background discovery re-browses
	// the network. mDNS answers are cached by peers, so a periodic browse
	// picks up devices that joined after the previous round.
	DefaultRebrowseInterval = 5 * time.Minute

	// DefaultResultTTLSecs is how long a discovered service stays valid
	// without being rediscovered.
	DefaultResultTTLSecs int64 = 600
)

// Config configures the mDNS scanner.
type Config struct {
	// ServiceType is the mDNS service type to browse, e.g. "_http._tcp".
	// Defaults to DefaultServiceType when empty.
	ServiceType string

	// Domain is the mDNS domain, normally "local.".
	Domain string

	// RebrowseInterval is the pause between background browse rounds.
	// Defaults to DefaultRebrowseInterval when zero.
	RebrowseInterval time.Duration

	// ResultTTLSecs is the TTL assigned to produced results.
	// Defaults to DefaultResultTTLSecs when zero.
	ResultTTLSecs int64
}

// browser is the part of zeroconf.Resolver the scanner uses.
// Tests substitute a fake to drive entries without network access.
type browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// newBrowser creates the zeroconf resolver. Overridable for tests.
var newBrowser = func() (browser, error) {
	return zeroconf.NewResolver(nil)
}

// Scanner discovers services via mDNS/DNS-SD.
//
// It implements discovery.Scanner, discovery.StoppableScanner and
// discovery.BackgroundScanner: active scans run a single browse round,
// background mode re-browses periodically until stopped.
type Scanner struct {
	serviceType   string
	domain        string
	rebrowseEvery time.Duration
	resultTTL     int64

	mu         sync.Mutex
	scanCancel context.CancelFunc
	bgCancel   context.CancelFunc
}

// NewScanner creates an mDNS scanner, applying defaults for unset fields.
func NewScanner(cfg Config) *Scanner {
	if cfg.ServiceType == "" {
		cfg.ServiceType = DefaultServiceType
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.RebrowseInterval <= 0 {
		cfg.RebrowseInterval = DefaultRebrowseInterval
	}
	if cfg.ResultTTLSecs <= 0 {
		cfg.ResultTTLSecs = DefaultResultTTLSecs
	}
	return &Scanner{
		serviceType:   cfg.ServiceType,
		domain:        cfg.Domain,
		rebrowseEvery: cfg.RebrowseInterval,
		resultTTL:     cfg.ResultTTLSecs,
	}
}

// StartScan runs one browse round, reporting discovered services through
// the publisher. The resolver is created synchronously so setup failures
// reach the caller; browsing itself runs in a goroutine.
func (s *Scanner) StartScan(p discovery.Publisher) error {
	resolver, err := newBrowser()
	if err != nil {
		return fmt.Errorf("mdns: creating resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.scanCancel != nil {
		s.scanCancel()
	}
	s.scanCancel = cancel
	s.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry)
	go s.consume(entries, p)

	if err := resolver.Browse(ctx, s.serviceType, s.domain, entries); err != nil {
		cancel()
		// The resolver never took ownership of the channel.
		close(entries)
		return fmt.Errorf("mdns: browsing %s: %w", s.serviceType, err)
	}
	return nil
}

// StopScan cancels the in-flight browse round, if any.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
}

// StartBackground begins periodic browsing until StopBackground is called.
func (s *Scanner) StartBackground(p discovery.Publisher) error {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.bgCancel != nil {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.bgCancel = cancel
	s.mu.Unlock()

	go s.backgroundLoop(ctx, p)
	return nil
}

// StopBackground stops periodic browsing.
func (s *Scanner) StopBackground() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}
	return nil
}

// backgroundLoop browses once immediately, then on every tick.
func (s *Scanner) backgroundLoop(ctx context.Context, p discovery.Publisher) {
	s.browseRound(ctx, p)

	ticker := time.NewTicker(s.rebrowseEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.browseRound(ctx, p)
		}
	}
}

// browseRound performs one browse, bounded by the rebrowse interval so
// rounds never overlap.
func (s *Scanner) browseRound(ctx context.Context, p discovery.Publisher) {
	resolver, err := newBrowser()
	if err != nil {
		return
	}

	roundCtx, cancel := context.WithTimeout(ctx, s.rebrowseEvery)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		s.consume(entries, p)
		close(done)
	}()

	if err := resolver.Browse(roundCtx, s.serviceType, s.domain, entries); err != nil {
		close(entries)
	}
	<-done
}

// consume converts service entries to results until the channel closes.
func (s *Scanner) consume(entries <-chan *zeroconf.ServiceEntry, p discovery.Publisher) {
	for entry := range entries {
		if result := s.toResult(entry); result != nil {
			p.ThingDiscovered(result)
		}
	}
}

// toResult converts a zeroconf entry to a discovery result.
// Entries without a usable instance name are dropped.
func (s *Scanner) toResult(entry *zeroconf.ServiceEntry) *discovery.Result {
	if entry == nil {
		return nil
	}

	id := sanitizeSegment(entry.Instance)
	if id == "" {
		return nil
	}

	builder := discovery.NewResultBuilder(discovery.NewThingUID(ThingTypeService, id)).
		WithThingType(ThingTypeService).
		WithLabel(entry.Instance).
		WithProperty("name", entry.Instance).
		WithProperty("service", entry.Service).
		WithRepresentationProperty("name").
		WithTTL(s.resultTTL)

	if entry.HostName != "" {
		builder.WithProperty("host", entry.HostName)
	}
	if entry.Port > 0 {
		builder.WithProperty("port", entry.Port)
	}
	if ip := pickAddress(entry); ip != "" {
		builder.WithProperty("address", ip)
	}
	for key, value := range parseTXT(entry.Text) {
		builder.WithProperty("txt."+key, value)
	}

	result, err := builder.Build()
	if err != nil {
		return nil
	}
	return result
}

// pickAddress returns the entry's first address, preferring IPv4.
func pickAddress(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}

// parseTXT splits "key=value" TXT records into a map. Records without a
// value map to the empty string.
func parseTXT(records []string) map[string]string {
	if len(records) == 0 {
		return nil
	}
	txt := make(map[string]string, len(records))
	for _, record := range records {
		if record == "" {
			continue
		}
		parts := strings.SplitN(record, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else {
			txt[parts[0]] = ""
		}
	}
	return txt
}

// sanitizeSegment maps an mDNS instance name to a valid UID segment:
// letters and digits pass through, everything else collapses to a hyphen.
func sanitizeSegment(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
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
