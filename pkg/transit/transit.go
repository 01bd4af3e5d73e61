package transit

// BusPosition represents one tracked vehicle's last-known fix.
// All position data is in WGS84 decimal degrees.
type BusPosition struct {
	// BusID is the opaque backend identifier, stable across polls.
	// Marker diffing matches on this field.
	BusID string

	// BusNumber is the display label painted on the vehicle (e.g. "GB-1042")
	BusNumber string

	// BusName is an optional display label
	BusName string

	// OrganizationName is an optional operator display label
	OrganizationName string

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64
}

// Filter selects which buses a fetch returns.
type Filter struct {
	// OrganizationID is the operator whose active buses are requested
	OrganizationID string

	// RouteID optionally narrows the result to a single route.
	// Empty means all routes of the organization.
	RouteID string
}

// DataSource is the interface all bus-position providers implement.
// This abstraction allows switching between the production backend and
// fakes in tests.
type DataSource interface {
	// GetBusPositions returns all currently active buses matching the filter.
	// Entries with unparseable coordinates are dropped, never zero-filled.
	GetBusPositions(filter Filter) ([]BusPosition, error)

	// Close cleanly shuts down the data source.
	Close() error
}
