package mapview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/location"
	"github.com/gobangladesh/bustrack/pkg/transit"
)

// scriptedSource returns canned results in order, repeating the last one.
type scriptedSource struct {
	mu      sync.Mutex
	results []sourceResult
	calls   int
}

type sourceResult struct {
	buses []transit.BusPosition
	err   error
}

func (s *scriptedSource) GetBusPositions(filter transit.Filter) ([]transit.BusPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return res.buses, res.err
}

func (s *scriptedSource) Close() error { return nil }

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSurface captures decoded bridge commands.
type recordingSurface struct {
	mu       sync.Mutex
	commands []bridge.Command
}

func (s *recordingSurface) Send(payload []byte) error {
	cmd, err := bridge.DecodeCommand(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	return nil
}

func (s *recordingSurface) byType(t bridge.CommandType) []bridge.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bridge.Command
	for _, cmd := range s.commands {
		if cmd.Type == t {
			out = append(out, cmd)
		}
	}
	return out
}

// stubProvider is a minimal location provider for locate-me tests.
type stubProvider struct {
	fix Fix
	err error
}

type Fix = location.Fix

func (p *stubProvider) ServicesEnabled(ctx context.Context) (bool, error) { return true, nil }
func (p *stubProvider) Permission(ctx context.Context) (location.PermissionState, error) {
	return location.PermissionGranted, nil
}
func (p *stubProvider) RequestPermission(ctx context.Context) (location.PermissionState, error) {
	return location.PermissionGranted, nil
}
func (p *stubProvider) Locate(ctx context.Context, tier location.AccuracyTier) (Fix, error) {
	return p.fix, p.err
}

type stateChange struct {
	state      State
	refreshing bool
}

// harness bundles a controller with channels observing its listener.
type harness struct {
	controller *Controller
	surface    *recordingSurface
	source     *scriptedSource
	states     chan stateChange
	notices    chan string
	fixes      chan Fix
}

func newHarness(t *testing.T, results []sourceResult, provider location.Provider) *harness {
	t.Helper()
	h := &harness{
		surface: &recordingSurface{},
		source:  &scriptedSource{results: results},
		states:  make(chan stateChange, 16),
		notices: make(chan string, 16),
		fixes:   make(chan Fix, 4),
	}

	listener := Listener{
		OnStateChange:      func(s State, r bool) { h.states <- stateChange{s, r} },
		OnNotice:           func(msg string) { h.notices <- msg },
		OnLocationResolved: func(f Fix) { h.fixes <- f },
	}

	poller := transit.NewPoller(h.source, time.Hour)
	// Scripted failures must surface on the first attempt, not get absorbed
	// by the initial-fetch backoff.
	poller.SetRetry(transit.RetryConfig{})
	resolver := location.NewResolver(provider, location.Config{
		Platform: location.PlatformAndroid,
		Tiers:    []location.Tier{{Accuracy: location.TierHigh, Timeout: time.Second}},
	})
	b := bridge.New(h.surface, 0.2)
	h.controller = NewController(poller, resolver, b, transit.Filter{OrganizationID: "org-1"}, listener)
	t.Cleanup(h.controller.Unmount)
	return h
}

func (h *harness) waitState(t *testing.T, want State) stateChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case sc := <-h.states:
			if sc.state == want {
				return sc
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %v", want)
		}
	}
}

func (h *harness) waitNotice(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-h.notices:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for notice")
		return ""
	}
}

func buses(ids ...string) []transit.BusPosition {
	out := make([]transit.BusPosition, 0, len(ids))
	for i, id := range ids {
		out = append(out, transit.BusPosition{
			BusID:     id,
			BusNumber: "B-" + id,
			Latitude:  23.80 + float64(i)*0.01,
			Longitude: 90.40 + float64(i)*0.01,
		})
	}
	return out
}

// TestInitialLoad tests the loading transitions for the three first-fetch
// outcomes.
func TestInitialLoad(t *testing.T) {
	t.Run("Buses populate the screen", func(t *testing.T) {
		h := newHarness(t, []sourceResult{{buses: buses("1", "2")}}, &stubProvider{})

		h.controller.Mount()
		h.waitState(t, StatePopulated)

		if err := h.controller.LastError(); err != nil {
			t.Errorf("Expected no error after successful load, got: %v", err)
		}
	})

	t.Run("No buses means empty, not error", func(t *testing.T) {
		h := newHarness(t, []sourceResult{{buses: nil}}, &stubProvider{})

		h.controller.Mount()
		h.waitState(t, StateEmpty)

		if err := h.controller.LastError(); err != nil {
			t.Errorf("Expected no error for an empty city, got: %v", err)
		}
	})

	t.Run("Fetch failure blocks with retry", func(t *testing.T) {
		h := newHarness(t, []sourceResult{
			{err: errors.New("backend down")},
			{buses: buses("1")},
		}, &stubProvider{})

		h.controller.Mount()
		h.waitState(t, StateEmpty)
		if h.controller.LastError() == nil {
			t.Fatal("Expected the blocking error to be recorded")
		}

		h.controller.Retry()
		h.waitState(t, StateLoading)
		h.waitState(t, StatePopulated)
		if err := h.controller.LastError(); err != nil {
			t.Errorf("Expected error cleared after retry, got: %v", err)
		}
		if got := h.source.callCount(); got != 2 {
			t.Errorf("Expected exactly 2 fetches (initial + retry), got %d", got)
		}
	})
}

// TestMapReadyReplay verifies markers queued before the surface reports
// ready are delivered exactly once afterwards.
func TestMapReadyReplay(t *testing.T) {
	h := newHarness(t, []sourceResult{{buses: buses("1", "2")}}, &stubProvider{})

	h.controller.Mount()
	h.waitState(t, StatePopulated)

	if got := h.surface.byType(bridge.CommandUpdateMarkers); len(got) != 0 {
		t.Fatalf("Expected no surface sends before ready, got %d", len(got))
	}

	h.controller.HandleSurfaceEvent(bridge.EventMapReady)

	updates := h.surface.byType(bridge.CommandUpdateMarkers)
	if len(updates) != 1 {
		t.Fatalf("Expected one replayed marker command, got %d", len(updates))
	}
	if got := len(updates[0].Added); got != 2 {
		t.Errorf("Expected 2 buses replayed, got %d", got)
	}
}

// TestBackgroundErrorIsTransient verifies a refresh failure after a
// successful load keeps the populated screen and only raises a notice.
func TestBackgroundErrorIsTransient(t *testing.T) {
	h := newHarness(t, []sourceResult{
		{buses: buses("1")},
		{err: errors.New("flaky network")},
	}, &stubProvider{})

	h.controller.Mount()
	h.waitState(t, StatePopulated)
	h.controller.HandleSurfaceEvent(bridge.EventMapReady)

	h.controller.Refresh()
	h.waitNotice(t)

	state, refreshing := h.controller.State()
	if state != StatePopulated {
		t.Errorf("Expected populated screen to survive a refresh failure, got %v", state)
	}
	if refreshing {
		t.Error("Expected refresh overlay cleared after the failure")
	}
}

// TestRefreshOverlay verifies the overlay shows during a user refresh and
// clears when the fetch settles.
func TestRefreshOverlay(t *testing.T) {
	h := newHarness(t, []sourceResult{{buses: buses("1")}}, &stubProvider{})

	h.controller.Mount()
	h.waitState(t, StatePopulated)

	h.controller.Refresh()

	sawOverlay := false
	deadline := time.After(2 * time.Second)
	for !sawOverlay {
		select {
		case sc := <-h.states:
			if sc.refreshing {
				sawOverlay = true
			}
		case <-deadline:
			t.Fatal("Timed out waiting for the refresh overlay")
		}
	}

	sc := h.waitState(t, StatePopulated)
	if sc.refreshing {
		t.Error("Expected overlay cleared when the refresh settled")
	}
}

// TestBlurFocus verifies polling pauses while the screen is hidden and
// resumes with an immediate fetch on focus.
func TestBlurFocus(t *testing.T) {
	h := newHarness(t, []sourceResult{{buses: buses("1")}}, &stubProvider{})

	h.controller.Mount()
	h.waitState(t, StatePopulated)
	before := h.source.callCount()

	h.controller.Blur()
	h.controller.Refresh() // no-op while blurred
	time.Sleep(50 * time.Millisecond)
	if got := h.source.callCount(); got != before {
		t.Fatalf("Expected no fetches while blurred, got %d extra", got-before)
	}

	h.controller.Focus()
	deadline := time.After(2 * time.Second)
	for h.source.callCount() == before {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for the focus fetch")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestLocateMe tests the locate-me flow end to end through the bridge.
func TestLocateMe(t *testing.T) {
	t.Run("Success focuses the camera", func(t *testing.T) {
		provider := &stubProvider{fix: Fix{Latitude: 23.75, Longitude: 90.39}}
		h := newHarness(t, []sourceResult{{buses: buses("1")}}, provider)

		h.controller.Mount()
		h.waitState(t, StatePopulated)
		h.controller.HandleSurfaceEvent(bridge.EventMapReady)

		h.controller.LocateMe(context.Background())

		select {
		case fix := <-h.fixes:
			if fix.Latitude != 23.75 {
				t.Errorf("Unexpected resolved fix: %v", fix)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for the resolved fix")
		}

		users := h.surface.byType(bridge.CommandSetUserMarker)
		if len(users) != 1 {
			t.Fatalf("Expected 1 user marker command, got %d", len(users))
		}
		regions := h.surface.byType(bridge.CommandFitRegion)
		if len(regions) == 0 {
			t.Fatal("Expected a camera move to the user")
		}
		last := regions[len(regions)-1]
		if last.Region.Center.Latitude != 23.75 {
			t.Errorf("Expected camera centered on the user, got %v", last.Region.Center)
		}
	})

	t.Run("Failure raises advice, never blocks", func(t *testing.T) {
		provider := &stubProvider{err: location.ErrServicesDisabled}
		h := newHarness(t, []sourceResult{{buses: buses("1")}}, provider)

		h.controller.Mount()
		h.waitState(t, StatePopulated)

		h.controller.LocateMe(context.Background())

		msg := h.waitNotice(t)
		if msg == "" {
			t.Fatal("Expected a remediation notice")
		}
		state, _ := h.controller.State()
		if state != StatePopulated {
			t.Errorf("Expected location failure to leave the screen alone, got %v", state)
		}
	})
}

// TestUnmount verifies callbacks stop after unmount.
func TestUnmount(t *testing.T) {
	h := newHarness(t, []sourceResult{{buses: buses("1")}}, &stubProvider{})

	h.controller.Mount()
	h.waitState(t, StatePopulated)

	h.controller.Unmount()
	state, _ := h.controller.State()
	if state != StateUnmounted {
		t.Fatalf("Expected unmounted state, got %v", state)
	}

	// Further operations are inert.
	h.controller.Refresh()
	h.controller.FitAll()
	h.controller.LocateMe(context.Background())
	h.controller.Mount()

	time.Sleep(50 * time.Millisecond)
	select {
	case sc := <-h.states:
		t.Errorf("Unexpected state change after unmount: %v", sc)
	case msg := <-h.notices:
		t.Errorf("Unexpected notice after unmount: %q", msg)
	default:
	}
}
