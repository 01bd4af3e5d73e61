// Package bridge owns the embedded map surface's marker state and camera,
// and arbitrates between automated updates (poll results, resolved user
// fixes) and user-driven camera control.
package bridge

import (
	"sync"

	"github.com/gobangladesh/bustrack/pkg/geo"
	"github.com/gobangladesh/bustrack/pkg/location"
	"github.com/gobangladesh/bustrack/pkg/transit"
)

// Surface is the message channel to the embedded map renderer. Send is
// fire-and-forget; delivery is not acknowledged and the channel must be
// treated as unreliable until the surface reports EventMapReady.
type Surface interface {
	Send(payload []byte) error
}

// CameraControl tracks whether the map viewport is under automatic or
// manual control.
type CameraControl int

const (
	// CameraAuto means the system may recenter and refit freely
	CameraAuto CameraControl = iota

	// CameraManual means the user has panned or zoomed; the system must
	// not move the camera until an explicit user action resets it
	CameraManual
)

func (c CameraControl) String() string {
	if c == CameraManual {
		return "manual"
	}
	return "auto"
}

// pendingBuses is the latest buffered bus update awaiting surface readiness.
// Only the newest state is kept; replaying stale intermediate batches would
// cause visible flicker with no benefit.
type pendingBuses struct {
	buses      []transit.BusPosition
	initialFit bool
	isRefresh  bool
}

// pendingUser is the latest buffered user-marker update.
type pendingUser struct {
	fix       location.Fix
	focusOnly bool
}

// Bridge mediates between the host and the rendering surface.
type Bridge struct {
	mu sync.Mutex

	surface    Surface
	fitPadding float64
	fallback   geo.Region

	ready  bool
	camera CameraControl

	// buses is the current marker set keyed by bus id
	buses map[string]transit.BusPosition
	user  *location.Fix

	pendingBuses *pendingBuses
	pendingUser  *pendingUser

	// onEvent, when set, receives every surface event after the bridge
	// has applied its own handling
	onEvent func(event string)
}

// New creates a bridge over the given surface. fitPadding is the fraction
// of extra span added around fitted bounds (e.g. 0.2 for 20%).
func New(surface Surface, fitPadding float64) *Bridge {
	return &Bridge{
		surface:    surface,
		fitPadding: fitPadding,
		fallback:   geo.DefaultRegion,
		camera:     CameraAuto,
		buses:      make(map[string]transit.BusPosition),
	}
}

// SetDefaultRegion overrides the fallback viewport used when there is
// nothing to fit the camera to.
func (b *Bridge) SetDefaultRegion(region geo.Region) {
	b.mu.Lock()
	b.fallback = region
	b.mu.Unlock()
}

// SetEventHandler registers a callback invoked for every surface event.
func (b *Bridge) SetEventHandler(fn func(event string)) {
	b.mu.Lock()
	b.onEvent = fn
	b.mu.Unlock()
}

// CameraState returns the current camera control state.
func (b *Bridge) CameraState() CameraControl {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.camera
}

// Ready reports whether the surface has signaled EventMapReady.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Initialize renders the starting marker set and performs the one initial
// camera fit. The fit always happens regardless of camera state because it
// precedes any possible user interaction.
func (b *Bridge) Initialize(buses []transit.BusPosition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		b.pendingBuses = &pendingBuses{buses: buses, initialFit: true}
		return
	}
	b.applyBusesLocked(buses, false, true)
}

// UpdateBuses replaces the bus marker set. Markers are matched by bus id so
// only genuinely new ids play an entrance animation. The camera refits only
// for non-refresh updates while under automatic control; a background poll
// refresh never moves the camera, regardless of control state.
func (b *Bridge) UpdateBuses(buses []transit.BusPosition, isRefresh bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		initialFit := b.pendingBuses != nil && b.pendingBuses.initialFit
		b.pendingBuses = &pendingBuses{buses: buses, initialFit: initialFit, isRefresh: isRefresh}
		return
	}
	b.applyBusesLocked(buses, isRefresh, false)
}

// SetUserMarker places or updates the single user marker. With focusOnly
// the camera unconditionally recenters on the user and control resets to
// automatic; otherwise the marker moves and the camera only follows while
// under automatic control.
func (b *Bridge) SetUserMarker(fix location.Fix, focusOnly bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		focus := focusOnly
		if b.pendingUser != nil && b.pendingUser.focusOnly {
			focus = true
		}
		b.pendingUser = &pendingUser{fix: fix, focusOnly: focus}
		return
	}
	b.applyUserLocked(fix, focusOnly)
}

// OnUserGesture records that the surface detected a manual pan or zoom
// start. The camera stays under manual control until an explicit action
// resets it.
func (b *Bridge) OnUserGesture() {
	b.mu.Lock()
	b.camera = CameraManual
	b.mu.Unlock()
}

// FitAllMarkers recomputes bounds over all bus markers (and the user marker
// if present) and fits the camera. Explicit user action: always moves the
// camera and resets control to automatic.
func (b *Bridge) FitAllMarkers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return
	}
	b.camera = CameraAuto

	points := make([]geo.Point, 0, len(b.buses)+1)
	for _, bus := range b.buses {
		points = append(points, geo.Point{Latitude: bus.Latitude, Longitude: bus.Longitude})
	}
	if b.user != nil {
		points = append(points, geo.Point{Latitude: b.user.Latitude, Longitude: b.user.Longitude})
	}
	b.sendRegionLocked(b.fitRegionLocked(points))
}

// HandleEvent processes an event from the surface. EventMapReady opens the
// channel and flushes the latest buffered state; EventUserInteraction
// transfers camera control to the user. All events are forwarded to the
// registered handler afterwards.
func (b *Bridge) HandleEvent(event string) {
	b.mu.Lock()
	switch event {
	case EventMapReady:
		b.ready = true
		if p := b.pendingBuses; p != nil {
			b.pendingBuses = nil
			b.applyBusesLocked(p.buses, p.isRefresh, p.initialFit)
		}
		if p := b.pendingUser; p != nil {
			b.pendingUser = nil
			b.applyUserLocked(p.fix, p.focusOnly)
		}
	case EventUserInteraction:
		b.camera = CameraManual
	}
	onEvent := b.onEvent
	b.mu.Unlock()

	if onEvent != nil {
		onEvent(event)
	}
}

// MarkerCount returns the current number of bus markers.
func (b *Bridge) MarkerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buses)
}

// applyBusesLocked diffs the new batch against the current marker set and
// sends the patch, then refits the camera when the precedence rules allow.
// Callers hold b.mu.
func (b *Bridge) applyBusesLocked(buses []transit.BusPosition, isRefresh, initialFit bool) {
	cmd := Command{Type: CommandUpdateMarkers}
	next := make(map[string]transit.BusPosition, len(buses))

	for _, bus := range buses {
		next[bus.BusID] = bus
		m := busMarker(bus)
		if _, existed := b.buses[bus.BusID]; existed {
			cmd.Updated = append(cmd.Updated, m)
		} else {
			cmd.Added = append(cmd.Added, m)
		}
	}
	for id := range b.buses {
		if _, kept := next[id]; !kept {
			cmd.RemovedIDs = append(cmd.RemovedIDs, id)
		}
	}
	b.buses = next
	b.sendLocked(cmd)

	if initialFit {
		points := make([]geo.Point, 0, len(buses))
		for _, bus := range buses {
			points = append(points, geo.Point{Latitude: bus.Latitude, Longitude: bus.Longitude})
		}
		b.sendRegionLocked(b.fitRegionLocked(points))
		return
	}
	if !isRefresh && b.camera == CameraAuto {
		points := make([]geo.Point, 0, len(buses))
		for _, bus := range buses {
			points = append(points, geo.Point{Latitude: bus.Latitude, Longitude: bus.Longitude})
		}
		b.sendRegionLocked(b.fitRegionLocked(points))
	}
}

// applyUserLocked sends the user marker and applies the focus rules.
// Callers hold b.mu.
func (b *Bridge) applyUserLocked(fix location.Fix, focusOnly bool) {
	b.user = &fix
	m := Marker{
		ID:        "user",
		Label:     "You",
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
	}
	b.sendLocked(Command{Type: CommandSetUserMarker, User: &m})

	center := geo.RegionAround(geo.Point{Latitude: fix.Latitude, Longitude: fix.Longitude})
	if focusOnly {
		// Explicit "locate me": always wins, and hands the camera back
		// to automatic control.
		b.camera = CameraAuto
		b.sendRegionLocked(center)
		return
	}
	if b.camera == CameraAuto {
		b.sendRegionLocked(center)
	}
}

// sendRegionLocked emits a camera command. Callers hold b.mu.
func (b *Bridge) sendRegionLocked(region geo.Region) {
	r := region
	b.sendLocked(Command{Type: CommandFitRegion, Region: &r})
}

// sendLocked serializes and sends a command. Failures are dropped: the
// channel is fire-and-forget and the next state change supersedes anyway.
// Callers hold b.mu.
func (b *Bridge) sendLocked(cmd Command) {
	payload, err := cmd.Encode()
	if err != nil {
		return
	}
	_ = b.surface.Send(payload)
}

// fitRegionLocked picks the camera region for a marker set: bounds fit for
// two or more points, close zoom on a single point, the fallback region
// when there is nothing to show. Callers hold b.mu.
func (b *Bridge) fitRegionLocked(points []geo.Point) geo.Region {
	switch len(points) {
	case 0:
		return b.fallback
	case 1:
		return geo.RegionAround(points[0])
	default:
		bounds, _ := geo.BoundsOf(points)
		return bounds.FitRegion(b.fitPadding)
	}
}

// busMarker converts a bus position to its surface marker.
func busMarker(bus transit.BusPosition) Marker {
	title := bus.BusName
	if title == "" {
		title = bus.OrganizationName
	}
	return Marker{
		ID:        bus.BusID,
		Label:     bus.BusNumber,
		Title:     title,
		Latitude:  bus.Latitude,
		Longitude: bus.Longitude,
	}
}
