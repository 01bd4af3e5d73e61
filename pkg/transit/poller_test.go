package transit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource is a controllable DataSource for poller tests.
type fakeSource struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	buses     []BusPosition
	errs      []error // consumed one per call, nil entries mean success
	release   chan struct{}
}

func (s *fakeSource) GetBusPositions(Filter) ([]BusPosition, error) {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	var err error
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	release := s.release
	s.mu.Unlock()

	if release != nil {
		<-release
	}

	s.mu.Lock()
	s.active--
	buses := s.buses
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return buses, nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) stats() (calls, maxActive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.maxActive
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
}

// TestPollerNoConcurrentFetches verifies that ticks firing while a fetch is
// in flight are skipped instead of starting overlapping requests.
func TestPollerNoConcurrentFetches(t *testing.T) {
	source := &fakeSource{
		buses:   []BusPosition{{BusID: "b1", Latitude: 23.81, Longitude: 90.41}},
		release: make(chan struct{}),
	}
	tick := make(chan time.Time)

	p := NewPoller(source, time.Second)
	p.tick = tick

	updates := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) {})
	defer h.Stop()

	// The initial fetch is now blocked inside the source. Every tick sent
	// here must be skipped, not queued.
	for i := 0; i < 3; i++ {
		tick <- time.Now()
	}

	close(source.release)
	waitFor(t, updates, "first update")

	if _, maxActive := source.stats(); maxActive != 1 {
		t.Errorf("Expected at most 1 fetch in flight, observed %d", maxActive)
	}
}

// TestPollerStopSuppressesCallbacks verifies that no callback fires after
// Stop returns, even when a pending tick is delivered afterwards.
func TestPollerStopSuppressesCallbacks(t *testing.T) {
	source := &fakeSource{buses: []BusPosition{{BusID: "b1"}}}
	tick := make(chan time.Time, 4)

	p := NewPoller(source, time.Second)
	p.tick = tick

	updates := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) { updates <- struct{}{} })

	waitFor(t, updates, "initial update")

	h.Stop()
	h.Stop() // idempotent

	tick <- time.Now()
	time.Sleep(100 * time.Millisecond)

	select {
	case <-updates:
		t.Error("Callback fired after Stop returned")
	default:
	}
}

// TestPollerErrorKeepsLoopAlive verifies that a failed fetch reports through
// onError and the next tick still fetches.
func TestPollerErrorKeepsLoopAlive(t *testing.T) {
	source := &fakeSource{
		buses: []BusPosition{{BusID: "b1"}},
		errs:  []error{errors.New("backend unreachable")},
	}
	tick := make(chan time.Time)

	p := NewPoller(source, time.Second)
	p.tick = tick
	p.SetRetry(RetryConfig{}) // the failure must surface, not be retried away

	updates := make(chan struct{}, 8)
	failures := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) { failures <- struct{}{} })
	defer h.Stop()

	waitFor(t, failures, "initial failure")

	if stats := h.Stats(); stats.LastError == nil {
		t.Error("Expected LastError recorded after failed fetch")
	}

	tick <- time.Now()
	waitFor(t, updates, "recovery update")

	if stats := h.Stats(); stats.LastError != nil {
		t.Errorf("Expected LastError cleared after success, got %v", stats.LastError)
	}
}

// TestPollerRefreshNow verifies out-of-band fetches outside the cadence.
func TestPollerRefreshNow(t *testing.T) {
	source := &fakeSource{buses: []BusPosition{{BusID: "b1"}}}
	tick := make(chan time.Time)

	p := NewPoller(source, time.Second)
	p.tick = tick

	updates := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) {})
	defer h.Stop()

	waitFor(t, updates, "initial update")

	h.RefreshNow()
	waitFor(t, updates, "manual refresh update")

	calls, _ := source.stats()
	if calls != 2 {
		t.Errorf("Expected 2 fetches (initial + refresh), got %d", calls)
	}
}

// TestPollerInitialFetchRetries verifies the first fetch of a handle rides
// out transient failures with backoff instead of reporting them.
func TestPollerInitialFetchRetries(t *testing.T) {
	source := &fakeSource{
		buses: []BusPosition{{BusID: "b1"}},
		errs:  []error{errors.New("backend warming up"), errors.New("still warming up"), nil},
	}
	p := NewPoller(source, time.Hour)
	p.SetRetry(RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	})

	updates := make(chan struct{}, 8)
	failures := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) { failures <- struct{}{} })
	defer h.Stop()

	waitFor(t, updates, "update after backoff")

	select {
	case <-failures:
		t.Error("Transient startup failure leaked through the backoff")
	default:
	}
	if calls, _ := source.stats(); calls != 3 {
		t.Errorf("Expected 3 attempts (2 failures + success), got %d", calls)
	}
}

// TestPollerCallbackReentrancy verifies a callback may use its own handle
// for Stats and RefreshNow without deadlocking.
func TestPollerCallbackReentrancy(t *testing.T) {
	source := &fakeSource{buses: []BusPosition{{BusID: "b1"}}}
	p := NewPoller(source, time.Hour)

	var h *Handle
	var refreshOnce sync.Once
	started := make(chan struct{})
	done := make(chan struct{}, 8)

	h = p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) {
			<-started
			if stats := h.Stats(); stats.InFlight {
				t.Error("Expected InFlight cleared before delivery")
			}
			refreshOnce.Do(h.RefreshNow)
			done <- struct{}{}
		},
		func(error) {})
	close(started)

	waitFor(t, done, "initial delivery")
	waitFor(t, done, "delivery for the refresh requested inside the callback")

	h.Stop()
}

// TestPollerRefreshAfterStop verifies RefreshNow on a stopped handle is safe.
func TestPollerRefreshAfterStop(t *testing.T) {
	source := &fakeSource{buses: []BusPosition{{BusID: "b1"}}}
	p := NewPoller(source, time.Hour)

	updates := make(chan struct{}, 8)
	h := p.Start(Filter{OrganizationID: "org-1"},
		func([]BusPosition) { updates <- struct{}{} },
		func(error) {})

	waitFor(t, updates, "initial update")
	h.Stop()

	h.RefreshNow()
	time.Sleep(50 * time.Millisecond)

	select {
	case <-updates:
		t.Error("Refresh after Stop produced a callback")
	default:
	}
}
