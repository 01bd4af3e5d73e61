// Bus Map TUI
// Live terminal map of active buses, driven by the same poller/bridge/
// controller stack the mobile screens use. The terminal scene stands in for
// the embedded map surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gobangladesh/bustrack/internal/surface"
	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/config"
	"github.com/gobangladesh/bustrack/pkg/geo"
	"github.com/gobangladesh/bustrack/pkg/location"
	"github.com/gobangladesh/bustrack/pkg/mapview"
	"github.com/gobangladesh/bustrack/pkg/transit"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	orgID      = flag.String("org", "", "Organization id (overrides config)")
	routeID    = flag.String("route", "", "Route id (overrides config)")
)

// noticeBoard holds the latest transient notice for the view.
type noticeBoard struct {
	mu      sync.Mutex
	message string
	shownAt time.Time
}

func (n *noticeBoard) post(message string) {
	n.mu.Lock()
	n.message = message
	n.shownAt = time.Now()
	n.mu.Unlock()
}

// current returns the notice if it is fresh enough to display.
func (n *noticeBoard) current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if time.Since(n.shownAt) > 6*time.Second {
		return ""
	}
	return n.message
}

type model struct {
	controller *mapview.Controller
	scene      *surface.Scene
	notices    *noticeBoard

	width  int
	height int

	// panned is set once the user takes the camera; the view then uses
	// viewRegion instead of following the scene's region
	panned     bool
	viewRegion geo.Region

	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.controller.Unmount()
			return m, tea.Quit

		case "r":
			m.controller.Refresh()

		case "R":
			// Retry after a blocked initial load.
			m.controller.Retry()

		case "l":
			m.controller.LocateMe(context.Background())

		case "f":
			m.panned = false
			m.controller.FitAll()

		case "up", "down", "left", "right":
			m.takeCamera()
			step := m.viewRegion.LatDelta / 8
			switch msg.String() {
			case "up":
				m.viewRegion.Center.Latitude += step
			case "down":
				m.viewRegion.Center.Latitude -= step
			case "left":
				m.viewRegion.Center.Longitude -= m.viewRegion.LonDelta / 8
			case "right":
				m.viewRegion.Center.Longitude += m.viewRegion.LonDelta / 8
			}

		case "+", "=":
			m.takeCamera()
			m.viewRegion.LatDelta /= 1.5
			m.viewRegion.LonDelta /= 1.5

		case "-", "_":
			m.takeCamera()
			m.viewRegion.LatDelta *= 1.5
			m.viewRegion.LonDelta *= 1.5
		}
		return m, nil
	}
	return m, nil
}

// takeCamera switches the view to user control and tells the controller the
// user grabbed the map.
func (m *model) takeCamera() {
	if !m.panned {
		m.panned = true
		snap := m.scene.Snapshot()
		if snap.HasRegion {
			m.viewRegion = snap.Region
		} else {
			m.viewRegion = geo.DefaultRegion
		}
		m.controller.HandleSurfaceEvent(bridge.EventUserInteraction)
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *orgID != "" {
		cfg.API.OrganizationID = *orgID
	}
	if *routeID != "" {
		cfg.API.RouteID = *routeID
	}
	if cfg.API.OrganizationID == "" {
		fmt.Fprintln(os.Stderr, "An organization id is required (config or -org)")
		os.Exit(1)
	}

	client := transit.NewClient(cfg.API.BaseURL, cfg.API.RequestsPerSecond)
	poller := transit.NewPoller(client, cfg.API.PollInterval())

	resolver := location.NewResolver(
		location.NewIPProvider("http://ip-api.com"),
		location.Config{
			Platform: location.Platform(cfg.Location.Platform),
			Tiers:    cfg.Location.Tiers(),
		},
	)

	scene := surface.NewScene(nil)
	b := bridge.New(scene, cfg.Map.FitPadding)
	b.SetDefaultRegion(cfg.Map.DefaultRegion())

	notices := &noticeBoard{}
	controller := mapview.NewController(poller, resolver, b,
		transit.Filter{OrganizationID: cfg.API.OrganizationID, RouteID: cfg.API.RouteID},
		mapview.Listener{
			OnNotice: notices.post,
		},
	)

	controller.Mount()
	// The terminal scene is ready as soon as it exists.
	controller.HandleSurfaceEvent(bridge.EventMapReady)

	m := model{
		controller: controller,
		scene:      scene,
		notices:    notices,
		width:      120,
		height:     40,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("TUI error: %v", err)
	}
}
