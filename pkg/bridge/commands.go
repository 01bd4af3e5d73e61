package bridge

import (
	"encoding/json"

	"github.com/gobangladesh/bustrack/pkg/geo"
)

// Events the rendering surface reports back to the host. The channel is
// unreliable until EventMapReady has been observed.
const (
	EventMapReady          = "MAP_READY"
	EventUserInteraction   = "USER_INTERACTION"
	EventUserLocationAdded = "USER_LOCATION_ADDED"
	EventUserLocationError = "USER_LOCATION_ERROR"
)

// CommandType identifies a host-to-surface command.
type CommandType string

const (
	// CommandUpdateMarkers replaces/patches the bus marker set
	CommandUpdateMarkers CommandType = "updateMarkers"

	// CommandSetUserMarker places or moves the single user marker
	CommandSetUserMarker CommandType = "setUserMarker"

	// CommandFitRegion moves the camera to show a region
	CommandFitRegion CommandType = "fitRegion"
)

// Marker is a point annotation the surface renders.
type Marker struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Title     string  `json:"title,omitempty"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Command is the serialized payload sent over the surface channel.
// Marker updates distinguish added ids (which may play an entrance
// animation) from updated ids (moved in place, same visual identity).
type Command struct {
	Type       CommandType `json:"type"`
	Added      []Marker    `json:"added,omitempty"`
	Updated    []Marker    `json:"updated,omitempty"`
	RemovedIDs []string    `json:"removedIds,omitempty"`
	User       *Marker     `json:"user,omitempty"`
	Region     *geo.Region `json:"region,omitempty"`
}

// Encode serializes the command for the surface channel.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCommand parses a payload back into a Command. Surfaces use this on
// the receiving end of the channel.
func DecodeCommand(payload []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(payload, &c)
	return c, err
}
