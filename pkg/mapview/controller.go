// Package mapview orchestrates the live map screen: it owns the view state
// machine and wires the bus poller, the geolocation resolver and the map
// bridge together.
package mapview

import (
	"context"
	"log"
	"sync"

	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/location"
	"github.com/gobangladesh/bustrack/pkg/transit"
)

// State is the map screen's lifecycle state.
type State int

const (
	// StateLoading means the initial bus fetch has not completed yet
	StateLoading State = iota

	// StateEmpty means the screen is interactive but shows no buses,
	// either because none are active or the initial fetch failed
	StateEmpty

	// StatePopulated means bus markers are on the map
	StatePopulated

	// StateUnmounted means the screen is gone; all callbacks are ignored
	StateUnmounted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateUnmounted:
		return "unmounted"
	default:
		return "invalid"
	}
}

// Listener receives view-level notifications. All methods may be nil-safe
// no-ops; the controller checks before calling.
type Listener struct {
	// OnStateChange fires whenever the screen state or the refreshing
	// overlay changes.
	OnStateChange func(state State, refreshing bool)

	// OnNotice delivers a transient, non-blocking message (background
	// refresh failures, location problems).
	OnNotice func(message string)

	// OnLocationResolved fires after a successful locate-me.
	OnLocationResolved func(fix location.Fix)
}

// Controller drives one map screen instance.
type Controller struct {
	poller   *transit.Poller
	resolver *location.Resolver
	bridge   *bridge.Bridge
	filter   transit.Filter
	listener Listener

	mu          sync.Mutex
	state       State
	refreshing  bool
	initialized bool
	handle      *transit.Handle
	lastErr     error
	locating    bool
}

// NewController wires a controller over its collaborators. The bus poller
// does not run until Mount.
func NewController(p *transit.Poller, r *location.Resolver, b *bridge.Bridge, filter transit.Filter, listener Listener) *Controller {
	c := &Controller{
		poller:   p,
		resolver: r,
		bridge:   b,
		filter:   filter,
		listener: listener,
		state:    StateLoading,
	}
	b.SetEventHandler(c.onSurfaceEvent)
	return c
}

// State returns the current screen state and whether a refresh overlay is up.
func (c *Controller) State() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.refreshing
}

// LastError returns the error that blocked the initial load, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Mount starts polling. The screen begins in the loading state until the
// first fetch completes.
func (c *Controller) Mount() {
	c.mu.Lock()
	if c.state == StateUnmounted || c.handle != nil {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateLoading, false)
	c.mu.Unlock()

	c.startPolling()
}

// Unmount stops polling permanently. After Unmount returns no listener
// callback fires and no surface command is sent on the controller's behalf.
func (c *Controller) Unmount() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.state = StateUnmounted
	c.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// Blur pauses polling while the screen is hidden. Marker state stays on the
// surface; only the timer stops.
func (c *Controller) Blur() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// Focus resumes polling after a Blur. The restart fetches immediately so the
// marker set catches up without waiting a full interval.
func (c *Controller) Focus() {
	c.mu.Lock()
	if c.state == StateUnmounted || c.handle != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.startPolling()
}

// Refresh triggers a user-visible refresh: the overlay shows until the next
// fetch settles.
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.state == StateUnmounted || c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(c.state, true)
	handle := c.handle
	c.mu.Unlock()

	handle.RefreshNow()
}

// Retry re-attempts the initial load after a blocking failure.
func (c *Controller) Retry() {
	c.mu.Lock()
	if c.state == StateUnmounted || c.initialized {
		c.mu.Unlock()
		return
	}
	c.lastErr = nil
	c.setStateLocked(StateLoading, false)
	handle := c.handle
	c.mu.Unlock()

	if handle != nil {
		handle.RefreshNow()
	}
}

// LocateMe resolves the user's position and focuses the camera on it.
// Failures surface as a transient notice with platform-appropriate advice;
// they never block the screen. Concurrent calls coalesce into one.
func (c *Controller) LocateMe(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateUnmounted || c.locating {
		c.mu.Unlock()
		return
	}
	c.locating = true
	c.mu.Unlock()

	go func() {
		fix, err := c.resolver.Resolve(ctx)

		c.mu.Lock()
		c.locating = false
		unmounted := c.state == StateUnmounted
		c.mu.Unlock()
		if unmounted {
			return
		}

		if err != nil {
			class := location.ClassOf(err)
			log.Printf("Locate failed (%s): %v", class, err)
			c.notify(class.Advice(c.resolver.Platform()))
			return
		}

		c.bridge.SetUserMarker(fix, true)
		if c.listener.OnLocationResolved != nil {
			c.listener.OnLocationResolved(fix)
		}
	}()
}

// FitAll frames every marker on screen and returns camera control to
// automatic.
func (c *Controller) FitAll() {
	c.mu.Lock()
	unmounted := c.state == StateUnmounted
	c.mu.Unlock()
	if unmounted {
		return
	}
	c.bridge.FitAllMarkers()
}

// HandleSurfaceEvent feeds a raw surface event into the bridge. Hosts call
// this from whatever transport carries surface messages.
func (c *Controller) HandleSurfaceEvent(event string) {
	c.bridge.HandleEvent(event)
}

// startPolling spins up a poll loop and stores its handle.
func (c *Controller) startPolling() {
	handle := c.poller.Start(c.filter, c.onBuses, c.onPollError)

	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		handle.Stop()
		return
	}
	c.handle = handle
	c.mu.Unlock()
}

// onBuses handles a successful poll result.
func (c *Controller) onBuses(buses []transit.BusPosition) {
	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	first := !c.initialized
	c.initialized = true
	c.lastErr = nil
	c.refreshing = false

	next := StatePopulated
	if len(buses) == 0 {
		next = StateEmpty
	}
	c.setStateLocked(next, false)
	c.mu.Unlock()

	if first {
		c.bridge.Initialize(buses)
		return
	}
	c.bridge.UpdateBuses(buses, true)
}

// onPollError handles a fetch failure. Before the first success it blocks
// the screen with a retryable empty state; afterwards it degrades to a
// transient notice and the stale markers stay up.
func (c *Controller) onPollError(err error) {
	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	first := !c.initialized
	c.lastErr = err
	c.refreshing = false
	if first {
		c.setStateLocked(StateEmpty, false)
	} else {
		c.setStateLocked(c.state, false)
	}
	c.mu.Unlock()

	log.Printf("Bus fetch failed: %v", err)
	if !first {
		c.notify("Could not refresh bus locations")
	}
}

// onSurfaceEvent observes bridge events after the bridge applies them.
func (c *Controller) onSurfaceEvent(event string) {
	switch event {
	case bridge.EventUserLocationError:
		c.notify("Could not show your location on the map")
	}
}

// setStateLocked records state and fires the change callback. Callers hold
// c.mu, so the callback must not re-enter the controller.
func (c *Controller) setStateLocked(state State, refreshing bool) {
	c.state = state
	c.refreshing = refreshing
	if c.listener.OnStateChange != nil {
		c.listener.OnStateChange(state, refreshing)
	}
}

// notify sends a transient notice if a listener is attached.
func (c *Controller) notify(message string) {
	if c.listener.OnNotice != nil {
		c.listener.OnNotice(message)
	}
}
