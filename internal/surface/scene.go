package surface

import (
	"sort"
	"sync"

	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/geo"
)

// Scene is an in-process surface for terminal renderers. It decodes bridge
// commands into the marker and viewport state a frame renderer reads back.
type Scene struct {
	mu        sync.Mutex
	markers   map[string]bridge.Marker
	user      *bridge.Marker
	region    geo.Region
	hasRegion bool
	onChange  func()
}

// NewScene creates an empty scene. onChange, when non-nil, fires after every
// applied command so the renderer can redraw.
func NewScene(onChange func()) *Scene {
	return &Scene{
		markers:  make(map[string]bridge.Marker),
		onChange: onChange,
	}
}

// Send decodes and applies one bridge command.
func (s *Scene) Send(payload []byte) error {
	cmd, err := bridge.DecodeCommand(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch cmd.Type {
	case bridge.CommandUpdateMarkers:
		for _, m := range cmd.Added {
			s.markers[m.ID] = m
		}
		for _, m := range cmd.Updated {
			s.markers[m.ID] = m
		}
		for _, id := range cmd.RemovedIDs {
			delete(s.markers, id)
		}
	case bridge.CommandSetUserMarker:
		if cmd.User != nil {
			u := *cmd.User
			s.user = &u
		}
	case bridge.CommandFitRegion:
		if cmd.Region != nil {
			s.region = *cmd.Region
			s.hasRegion = true
		}
	}
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// Snapshot is a renderer-ready copy of the scene.
type Snapshot struct {
	// Markers are the bus markers sorted by id for stable draw order
	Markers []bridge.Marker

	// User is the user marker, nil when not placed
	User *bridge.Marker

	// Region is the viewport to draw; HasRegion is false before the
	// first camera command
	Region    geo.Region
	HasRegion bool
}

// Snapshot returns a consistent copy of the current scene.
func (s *Scene) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Markers:   make([]bridge.Marker, 0, len(s.markers)),
		Region:    s.region,
		HasRegion: s.hasRegion,
	}
	for _, m := range s.markers {
		snap.Markers = append(snap.Markers, m)
	}
	sort.Slice(snap.Markers, func(i, j int) bool {
		return snap.Markers[i].ID < snap.Markers[j].ID
	})
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}
