package discovery

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// eventLog records event names in order, shared between fakes so tests can
// assert cross-component ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeTask is a ScheduledTask controlled by fakeScheduler.
type fakeTask struct {
	fn        func()
	cancelled bool
	fired     bool
}

func (t *fakeTask) Cancel() bool {
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

// fakeScheduler collects scheduled tasks and fires them on demand, making
// the automatic scan stop deterministic in tests.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) Schedule(_ time.Duration, fn func()) ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// fire runs all pending tasks that have not been cancelled.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	pending := make([]*fakeTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.cancelled && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.fn()
	}
}

// pending reports how many scheduled tasks are still live.
func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

// fakeScanner is a minimal Scanner.
type fakeScanner struct {
	mu        sync.Mutex
	starts    int
	failStart error
	log       *eventLog
}

func (s *fakeScanner) StartScan(_ Publisher) error {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	if s.log != nil {
		s.log.add("scanner.start")
	}
	return s.failStart
}

func (s *fakeScanner) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// fullScanner implements every optional scanner capability.
type fullScanner struct {
	fakeScanner
	stops      int
	inputs     []string
	bgStarts   int
	bgStops    int
	failBgErr  error
	inputErr   error
	capMu      sync.Mutex
}

func (s *fullScanner) StopScan() {
	s.capMu.Lock()
	s.stops++
	s.capMu.Unlock()
	if s.log != nil {
		s.log.add("scanner.stop")
	}
}

func (s *fullScanner) StartScanWithInput(_ Publisher, input string) error {
	s.capMu.Lock()
	s.inputs = append(s.inputs, input)
	s.capMu.Unlock()
	return s.inputErr
}

func (s *fullScanner) StartBackground(_ Publisher) error {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	if s.failBgErr != nil {
		return s.failBgErr
	}
	s.bgStarts++
	return nil
}

func (s *fullScanner) StopBackground() error {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	s.bgStops++
	return nil
}

// recScanListener records scan outcomes.
type recScanListener struct {
	mu       sync.Mutex
	finished int
	errs     []error
	log      *eventLog
	name     string
}

func (l *recScanListener) OnFinished() {
	l.mu.Lock()
	l.finished++
	l.mu.Unlock()
	if l.log != nil {
		l.log.add(l.name + ".finished")
	}
}

func (l *recScanListener) OnError(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
	if l.log != nil {
		l.log.add(l.name + ".error")
	}
}

func (l *recScanListener) finishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

func (l *recScanListener) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// recListener records discovery events.
type recListener struct {
	mu          sync.Mutex
	discovered  []Result
	removed     []ThingUID
	olderCalls  int
	olderReturn []ThingUID
}

func (l *recListener) ThingDiscovered(_ *Service, r *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discovered = append(l.discovered, *r)
}

func (l *recListener) ThingRemoved(_ *Service, uid ThingUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, uid)
}

func (l *recListener) RemoveOlderResults(_ *Service, _ time.Time, _ []ThingTypeUID, _ ThingUID) []ThingUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.olderCalls++
	return l.olderReturn
}

func (l *recListener) discoveredResults() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.discovered...)
}

func (l *recListener) removedUIDs() []ThingUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ThingUID(nil), l.removed...)
}

// panicListener panics on every callback.
type panicListener struct{}

func (panicListener) ThingDiscovered(*Service, *Result)  { panic("boom") }
func (panicListener) ThingRemoved(*Service, ThingUID)    { panic("boom") }
func (panicListener) RemoveOlderResults(*Service, time.Time, []ThingTypeUID, ThingUID) []ThingUID {
	panic("boom")
}

func newTestService(t *testing.T, cfg Config, scanner Scanner) (*Service, *fakeScheduler) {
	t.Helper()
	s, err := NewService(cfg, scanner)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	sched := &fakeScheduler{}
	s.SetScheduler(sched)
	return s, sched
}

func testResult(t *testing.T, uid ThingUID) *Result {
	t.Helper()
	r, err := NewResultBuilder(uid).WithLabel("Test Thing").Build()
	if err != nil {
		t.Fatalf("building result: %v", err)
	}
	return r
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		scanner Scanner
		wantErr error
	}{
		{
			name:    "nil scanner",
			cfg:     Config{ID: "mdns"},
			scanner: nil,
			wantErr: ErrNilScanner,
		},
		{
			name:    "missing id",
			cfg:     Config{},
			scanner: &fakeScanner{},
			wantErr: ErrMissingServiceID,
		},
		{
			name:    "negative timeout",
			cfg:     Config{ID: "mdns", ScanTimeoutSecs: -1},
			scanner: &fakeScanner{},
			wantErr: ErrNegativeScanTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.cfg, tt.scanner)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewService() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartScan_SchedulesAutoStop(t *testing.T) {
	scanner := &fakeScanner{}
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)
	listener := &recScanListener{}

	if err := s.StartScan(listener); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	if scanner.startCount() != 1 {
		t.Errorf("scanner starts = %d, want 1", scanner.startCount())
	}
	if sched.pending() != 1 {
		t.Fatalf("pending auto-stop tasks = %d, want 1", sched.pending())
	}
	if !s.ScanInProgress() {
		t.Error("ScanInProgress() = false during scan")
	}
	if s.LastScan().IsZero() {
		t.Error("LastScan() should be set after StartScan")
	}

	// Fire the auto-stop: the scan ends and the listener hears about it.
	sched.fire()

	if listener.finishedCount() != 1 {
		t.Errorf("OnFinished calls = %d, want 1", listener.finishedCount())
	}
	if s.ScanInProgress() {
		t.Error("ScanInProgress() = true after auto-stop")
	}
}

func TestStartScan_ZeroTimeoutNoAutoStop(t *testing.T) {
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 0}, &fakeScanner{})

	if err := s.StartScan(&recScanListener{}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	if sched.pending() != 0 {
		t.Errorf("pending auto-stop tasks = %d, want 0 for zero timeout", sched.pending())
	}
	if !s.ScanInProgress() {
		t.Error("scan should run until stopped explicitly")
	}
}

func TestStartScan_RestartFinishesPreviousFirst(t *testing.T) {
	log := &eventLog{}
	scanner := &fakeScanner{log: log}
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)

	first := &recScanListener{log: log, name: "first"}
	if err := s.StartScan(first); err != nil {
		t.Fatalf("StartScan(first) error = %v", err)
	}

	second := &recScanListener{log: log, name: "second"}
	if err := s.StartScan(second); err != nil {
		t.Fatalf("StartScan(second) error = %v", err)
	}

	if first.finishedCount() != 1 {
		t.Errorf("first listener OnFinished calls = %d, want 1", first.finishedCount())
	}
	if second.finishedCount() != 0 {
		t.Errorf("second listener OnFinished calls = %d, want 0 while scanning", second.finishedCount())
	}

	// The first scan must finish before the second scanner start.
	events := log.snapshot()
	want := []string{"scanner.start", "first.finished", "scanner.start"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}

	// Only the second scan's auto-stop may still be pending.
	if sched.pending() != 1 {
		t.Errorf("pending auto-stop tasks = %d, want 1", sched.pending())
	}
}

func TestStartScan_ErrorRollsBack(t *testing.T) {
	failErr := errors.New("radio on fire")
	scanner := &fakeScanner{failStart: failErr}
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)
	listener := &recScanListener{}

	err := s.StartScan(listener)
	if !errors.Is(err, failErr) {
		t.Fatalf("StartScan() error = %v, want wrapped %v", err, failErr)
	}

	if s.ScanInProgress() {
		t.Error("service should be idle after failed scan start")
	}
	if sched.pending() != 0 {
		t.Errorf("pending auto-stop tasks = %d, want 0 after rollback", sched.pending())
	}
	if listener.finishedCount() != 0 {
		t.Errorf("OnFinished calls = %d, want 0 for failed start", listener.finishedCount())
	}
}

func TestAbortScan_DeliversErrScanAborted(t *testing.T) {
	scanner := &fullScanner{}
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)
	listener := &recScanListener{}

	if err := s.StartScan(listener); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	s.AbortScan()

	errs := listener.errors()
	if len(errs) != 1 || !errors.Is(errs[0], ErrScanAborted) {
		t.Fatalf("OnError calls = %v, want one ErrScanAborted", errs)
	}
	if listener.finishedCount() != 0 {
		t.Errorf("OnFinished calls = %d, want 0 for aborted scan", listener.finishedCount())
	}
	if sched.pending() != 0 {
		t.Errorf("pending auto-stop tasks = %d, want 0 after abort", sched.pending())
	}

	// Aborting again with no scan running is a no-op.
	s.AbortScan()
	if got := listener.errors(); len(got) != 1 {
		t.Errorf("OnError calls after idle abort = %d, want 1", len(got))
	}
}

func TestAbortScan_IdleNoOp(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	s.AbortScan() // must not panic or emit anything
	if s.ScanInProgress() {
		t.Error("ScanInProgress() = true after idle abort")
	}
}

func TestStopScan_Repeated(t *testing.T) {
	scanner := &fullScanner{}
	s, _ := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)
	listener := &recScanListener{}

	if err := s.StartScan(listener); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	s.StopScan()
	s.StopScan()
	s.StopScan()

	if listener.finishedCount() != 1 {
		t.Errorf("OnFinished calls = %d, want exactly 1", listener.finishedCount())
	}
}

func TestStartScanWithInput_Unsupported(t *testing.T) {
	scanner := &fakeScanner{}
	s, sched := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)

	if err := s.StartScanWithInput("192.168.1.0/24", &recScanListener{}); err != nil {
		t.Fatalf("StartScanWithInput() error = %v, want nil for unsupported input", err)
	}
	if scanner.startCount() != 0 {
		t.Error("scanner must not start when input is unsupported")
	}
	if s.ScanInProgress() {
		t.Error("no scan should be in progress")
	}
	if sched.pending() != 0 {
		t.Errorf("pending auto-stop tasks = %d, want 0", sched.pending())
	}
}

func TestStartScanWithInput_Supported(t *testing.T) {
	scanner := &fullScanner{}
	s, _ := newTestService(t, Config{ID: "mdns", ScanTimeoutSecs: 15}, scanner)

	if err := s.StartScanWithInput("pin-1234", &recScanListener{}); err != nil {
		t.Fatalf("StartScanWithInput() error = %v", err)
	}

	scanner.capMu.Lock()
	inputs := append([]string(nil), scanner.inputs...)
	scanner.capMu.Unlock()
	if len(inputs) != 1 || inputs[0] != "pin-1234" {
		t.Errorf("scanner inputs = %v, want [pin-1234]", inputs)
	}
}

func TestThingDiscovered_FanOutAndCache(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	l1 := &recListener{}
	l2 := &recListener{}
	s.AddListener(l1)
	s.AddListener(l2)

	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	for i, l := range []*recListener{l1, l2} {
		got := l.discoveredResults()
		if len(got) != 1 || got[0].ThingUID != "hue:bulb:kitchen-1" {
			t.Errorf("listener %d discovered = %v, want one kitchen-1 result", i+1, got)
		}
	}

	cached := s.CachedResults()
	if len(cached) != 1 || cached[0].ThingUID != "hue:bulb:kitchen-1" {
		t.Errorf("CachedResults() = %v, want one kitchen-1 result", cached)
	}
}

func TestThingDiscovered_SameUIDReplacesCached(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	l := &recListener{}
	s.AddListener(l)

	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	renamed, err := NewResultBuilder("hue:bulb:kitchen-1").WithLabel("Kitchen Ceiling").Build()
	if err != nil {
		t.Fatalf("building result: %v", err)
	}
	s.ThingDiscovered(renamed)

	got := l.discoveredResults()
	if len(got) != 2 {
		t.Fatalf("listener received %d results, want 2", len(got))
	}
	if got[1].Label != "Kitchen Ceiling" {
		t.Errorf("second event label = %q, want %q", got[1].Label, "Kitchen Ceiling")
	}

	cached := s.CachedResults()
	if len(cached) != 1 {
		t.Fatalf("cache size = %d, want 1", len(cached))
	}
	if cached[0].Label != "Kitchen Ceiling" {
		t.Errorf("cached label = %q, want the latest", cached[0].Label)
	}
}

func TestThingDiscovered_Localizer(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	s.SetLocalizer(func(label string) string { return "[de] " + label })
	l := &recListener{}
	s.AddListener(l)

	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	got := l.discoveredResults()
	if len(got) != 1 || got[0].Label != "[de] Test Thing" {
		t.Errorf("discovered = %v, want localized label", got)
	}
}

func TestThingDiscovered_PanicIsolation(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	healthy := &recListener{}
	s.AddListener(panicListener{})
	s.AddListener(healthy)

	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	if got := healthy.discoveredResults(); len(got) != 1 {
		t.Errorf("healthy listener discovered = %d results, want 1 despite sibling panic", len(got))
	}
	if cached := s.CachedResults(); len(cached) != 1 {
		t.Errorf("cache size = %d, want 1 despite listener panic", len(cached))
	}
}

func TestThingDiscovered_Nil(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	s.ThingDiscovered(nil) // must not panic
	if got := s.CachedResults(); len(got) != 0 {
		t.Errorf("CachedResults() = %v, want empty", got)
	}
}

func TestAddListener_ReplaysCache(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))
	s.ThingDiscovered(testResult(t, "hue:bulb:hall-1"))

	late := &recListener{}
	s.AddListener(late)

	got := late.discoveredResults()
	if len(got) != 2 {
		t.Fatalf("replayed results = %d, want 2", len(got))
	}
	seen := map[ThingUID]int{}
	for _, r := range got {
		seen[r.ThingUID]++
	}
	if seen["hue:bulb:kitchen-1"] != 1 || seen["hue:bulb:hall-1"] != 1 {
		t.Errorf("replay delivered %v, want each cached result exactly once", seen)
	}
}

func TestRemoveListener(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	l := &recListener{}
	s.AddListener(l)
	s.RemoveListener(l)

	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	// Only the replay from AddListener-time cache (empty) may have arrived.
	if got := l.discoveredResults(); len(got) != 0 {
		t.Errorf("removed listener received %d results, want 0", len(got))
	}
}

func TestThingRemoved(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	l := &recListener{}
	s.AddListener(l)
	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))

	s.ThingRemoved("hue:bulb:kitchen-1")

	if got := l.removedUIDs(); len(got) != 1 || got[0] != "hue:bulb:kitchen-1" {
		t.Errorf("removed UIDs = %v", got)
	}
	if cached := s.CachedResults(); len(cached) != 0 {
		t.Errorf("cache size = %d after removal, want 0", len(cached))
	}
}

func TestRemoveOlderResults_PurgesCache(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns"}, &fakeScanner{})
	s.ThingDiscovered(testResult(t, "hue:bulb:kitchen-1"))
	s.ThingDiscovered(testResult(t, "hue:bulb:hall-1"))

	l := &recListener{olderReturn: []ThingUID{"hue:bulb:kitchen-1"}}
	s.AddListener(l)

	s.RemoveOlderResults(time.Now().UTC(), []ThingTypeUID{"hue:bulb"}, "")

	cached := s.CachedResults()
	if len(cached) != 1 || cached[0].ThingUID != "hue:bulb:hall-1" {
		t.Errorf("CachedResults() = %v, want only hall-1 left", cached)
	}
}

func TestBackgroundDiscovery_Lifecycle(t *testing.T) {
	scanner := &fullScanner{}
	s, _ := newTestService(t, Config{ID: "mdns", BackgroundDiscovery: true}, scanner)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	scanner.capMu.Lock()
	starts := scanner.bgStarts
	scanner.capMu.Unlock()
	if starts != 1 {
		t.Errorf("background starts = %d, want 1", starts)
	}
	if !s.BackgroundDiscoveryEnabled() {
		t.Error("BackgroundDiscoveryEnabled() = false")
	}

	if err := s.SetBackgroundDiscovery(false); err != nil {
		t.Fatalf("SetBackgroundDiscovery(false) error = %v", err)
	}
	scanner.capMu.Lock()
	stops := scanner.bgStops
	scanner.capMu.Unlock()
	if stops != 1 {
		t.Errorf("background stops = %d, want 1", stops)
	}
	if s.BackgroundDiscoveryEnabled() {
		t.Error("BackgroundDiscoveryEnabled() = true after disable")
	}
}

func TestBackgroundDiscovery_DisabledByDefault(t *testing.T) {
	scanner := &fullScanner{}
	s, _ := newTestService(t, Config{ID: "mdns"}, scanner)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	scanner.capMu.Lock()
	starts := scanner.bgStarts
	scanner.capMu.Unlock()
	if starts != 0 {
		t.Errorf("background starts = %d, want 0 when disabled", starts)
	}
}

func TestBackgroundDiscovery_UnsupportedScanner(t *testing.T) {
	s, _ := newTestService(t, Config{ID: "mdns", BackgroundDiscovery: true}, &fakeScanner{})
	if err := s.Start(); err != nil {
		t.Errorf("Start() error = %v, want nil for scanner without background support", err)
	}
}

func TestService_SupportsThingType(t *testing.T) {
	s, _ := newTestService(t, Config{
		ID:         "mdns",
		ThingTypes: []ThingTypeUID{"hue:bulb", "hue:strip"},
	}, &fakeScanner{})

	if !s.SupportsThingType("hue:bulb") {
		t.Error("SupportsThingType(hue:bulb) = false")
	}
	if s.SupportsThingType("zwave:sensor") {
		t.Error("SupportsThingType(zwave:sensor) = true")
	}
}
