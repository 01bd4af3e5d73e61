package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/geo"
	"github.com/gobangladesh/bustrack/pkg/mapview"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	busStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// mapToScreen converts a coordinate to a grid cell within the view region.
// Returns -1,-1 when the point falls outside the viewport.
func mapToScreen(region geo.Region, lat, lon float64, width, height int) (int, int) {
	halfLat := region.LatDelta / 2
	halfLon := region.LonDelta / 2
	if halfLat <= 0 || halfLon <= 0 {
		return -1, -1
	}

	// North at the top: latitude decreases as Y grows.
	fy := (region.Center.Latitude + halfLat - lat) / region.LatDelta
	fx := (lon - (region.Center.Longitude - halfLon)) / region.LonDelta

	x := int(fx * float64(width))
	y := int(fy * float64(height))
	if x < 0 || x >= width || y < 0 || y >= height {
		return -1, -1
	}
	return x, y
}

func (m model) View() string {
	snap := m.scene.Snapshot()

	region := geo.DefaultRegion
	if m.panned {
		region = m.viewRegion
	} else if snap.HasRegion {
		region = snap.Region
	}

	mapWidth := m.width - 36 // reserve space for the info panel
	if mapWidth < 60 {
		mapWidth = 60
	}
	mapHeight := m.height - 4
	if mapHeight < 20 {
		mapHeight = 20
	}

	grid := make([][]rune, mapHeight)
	for i := range grid {
		grid[i] = make([]rune, mapWidth)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	// Bus markers with their number labels.
	for _, marker := range snap.Markers {
		x, y := mapToScreen(region, marker.Latitude, marker.Longitude, mapWidth, mapHeight)
		if x < 0 {
			continue
		}
		grid[y][x] = '●'
		for i, ch := range marker.Label {
			lx := x + 2 + i
			if lx >= mapWidth {
				break
			}
			if grid[y][lx] == ' ' {
				grid[y][lx] = ch
			}
		}
	}

	// User marker last so it wins contested cells.
	if snap.User != nil {
		if x, y := mapToScreen(region, snap.User.Latitude, snap.User.Longitude, mapWidth, mapHeight); x >= 0 {
			grid[y][x] = '◎'
		}
	}

	var view strings.Builder
	view.WriteString(borderStyle.Render("┌" + strings.Repeat("─", mapWidth) + "┐"))
	view.WriteString("\n")
	for y := 0; y < mapHeight; y++ {
		view.WriteString(borderStyle.Render("│"))
		for x := 0; x < mapWidth; x++ {
			switch ch := grid[y][x]; ch {
			case '●':
				view.WriteString(busStyle.Render(string(ch)))
			case '◎':
				view.WriteString(userStyle.Render(string(ch)))
			case ' ':
				view.WriteRune(' ')
			default:
				view.WriteString(labelStyle.Render(string(ch)))
			}
		}
		view.WriteString(borderStyle.Render("│"))
		view.WriteString("\n")
	}
	view.WriteString(borderStyle.Render("└" + strings.Repeat("─", mapWidth) + "┘"))
	view.WriteString("\n")
	view.WriteString(m.renderStatus(snap.Markers, region))

	return view.String()
}

// renderStatus renders the line below the map: state, camera, notices, help.
func (m model) renderStatus(markers []bridge.Marker, region geo.Region) string {
	state, refreshing := m.controller.State()

	var status strings.Builder
	status.WriteString(headerStyle.Render("BUS MAP"))
	status.WriteString(fmt.Sprintf("  %d buses", len(markers)))

	switch state {
	case mapview.StateLoading:
		status.WriteString("  loading…")
	case mapview.StateEmpty:
		if err := m.controller.LastError(); err != nil {
			status.WriteString(noticeStyle.Render("  load failed, press R to retry"))
		} else {
			status.WriteString("  no buses running")
		}
	}
	if refreshing {
		status.WriteString("  refreshing…")
	}
	if m.panned {
		status.WriteString("  [manual camera]")
	}
	status.WriteString(fmt.Sprintf("  center %.4f°, %.4f°", region.Center.Latitude, region.Center.Longitude))

	if notice := m.notices.current(); notice != "" {
		status.WriteString("\n")
		status.WriteString(noticeStyle.Render(notice))
	}

	status.WriteString("\n")
	status.WriteString(helpStyle.Render("arrows: pan  +/-: zoom  f: fit all  l: locate me  r: refresh  q: quit"))
	return status.String()
}
