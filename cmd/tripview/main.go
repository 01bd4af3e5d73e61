// Trip History Browser
// Terminal browser over the local history cache: past trips and card
// transactions, with an optional backend sync when a session exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/gobangladesh/bustrack/internal/api"
	"github.com/gobangladesh/bustrack/internal/session"
	"github.com/gobangladesh/bustrack/internal/store"
	"github.com/gobangladesh/bustrack/pkg/config"
)

const pageSize = 50

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	offline    = flag.Bool("offline", false, "Skip backend sync, browse the cache only")
)

// App is the history browser application.
type App struct {
	tviewApp *tview.Application
	pages    *tview.Pages
	trips    *tview.Table
	txs      *tview.Table
	status   *tview.TextView

	store  *store.Store
	client *api.Client
	synced bool
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cache, err := store.Open(cfg.Cache.Path)
	if err != nil {
		log.Fatalf("Failed to open history cache: %v", err)
	}
	defer cache.Close()

	app := &App{
		tviewApp: tview.NewApplication(),
		pages:    tview.NewPages(),
		store:    cache,
		client:   api.NewClient(cfg.API.BaseURL),
	}

	if !*offline {
		app.attachSession(cfg)
	}

	app.buildUI()
	app.reload()

	if app.synced {
		go app.sync()
	}

	if err := app.tviewApp.Run(); err != nil {
		log.Fatalf("UI error: %v", err)
	}
}

// attachSession loads the saved session and arms the client for sync.
// Missing or expired sessions degrade to offline browsing.
func (a *App) attachSession(cfg *config.Config) {
	secret := os.Getenv("GOBD_SESSION_SECRET")
	if secret == "" {
		log.Println("No session secret set, browsing cache offline")
		return
	}

	sessStore, err := session.NewStore(cfg.Session.Path, []byte(secret))
	if err != nil {
		log.Printf("Failed to open session store: %v", err)
		return
	}
	sess, err := sessStore.Load()
	if err != nil {
		log.Printf("No usable session (%v), browsing cache offline", err)
		return
	}
	if sess.Expired(time.Now()) {
		log.Println("Session expired, sign in again to sync history")
		return
	}

	a.client.SetToken(sess.Token)
	a.synced = true
}

// buildUI assembles the two tables behind tabbed pages.
func (a *App) buildUI() {
	a.trips = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	a.trips.SetBorder(true).SetTitle(" Trips (t) ")

	a.txs = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	a.txs.SetBorder(true).SetTitle(" Transactions (x) ")

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetText("[::b]t[-:-:-] trips  [::b]x[-:-:-] transactions  [::b]s[-:-:-] sync  [::b]q[-:-:-] quit")

	a.pages.AddPage("trips", a.trips, true, true)
	a.pages.AddPage("txs", a.txs, true, false)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.status, 1, 0, false)

	a.tviewApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			a.tviewApp.Stop()
			return nil
		case 't':
			a.pages.SwitchToPage("trips")
			return nil
		case 'x':
			a.pages.SwitchToPage("txs")
			return nil
		case 's':
			if a.synced {
				go a.sync()
			} else {
				a.setStatus("Not signed in, cache only")
			}
			return nil
		}
		return event
	})

	a.tviewApp.SetRoot(layout, true)
}

// setStatus replaces the status line from any goroutine.
func (a *App) setStatus(text string) {
	a.tviewApp.QueueUpdateDraw(func() {
		a.status.SetText(text)
	})
}

// reload refills both tables from the cache.
func (a *App) reload() {
	ctx := context.Background()

	trips, err := a.store.Trips(ctx, pageSize, 0)
	if err != nil {
		log.Printf("Failed to load trips: %v", err)
	}
	a.fillTripTable(trips)

	txs, err := a.store.Transactions(ctx, pageSize, 0)
	if err != nil {
		log.Printf("Failed to load transactions: %v", err)
	}
	a.fillTxTable(txs)
}

func (a *App) fillTripTable(trips []api.Trip) {
	a.trips.Clear()
	headers := []string{"Started", "Bus", "Route", "From", "To", "Fare"}
	for col, h := range headers {
		a.trips.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}
	for row, t := range trips {
		a.trips.SetCell(row+1, 0, tview.NewTableCell(t.StartTime))
		a.trips.SetCell(row+1, 1, tview.NewTableCell(t.BusNumber))
		a.trips.SetCell(row+1, 2, tview.NewTableCell(t.RouteName))
		a.trips.SetCell(row+1, 3, tview.NewTableCell(t.BoardingAt))
		a.trips.SetCell(row+1, 4, tview.NewTableCell(t.AlightingAt))
		a.trips.SetCell(row+1, 5, tview.NewTableCell(fmt.Sprintf("%.2f", t.Fare)).
			SetAlign(tview.AlignRight))
	}
}

func (a *App) fillTxTable(txs []api.Transaction) {
	a.txs.Clear()
	headers := []string{"Date", "Type", "Amount", "Description"}
	for col, h := range headers {
		a.txs.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}
	for row, t := range txs {
		color := tcell.ColorRed
		if t.Amount >= 0 {
			color = tcell.ColorGreen
		}
		a.txs.SetCell(row+1, 0, tview.NewTableCell(t.CreatedAt))
		a.txs.SetCell(row+1, 1, tview.NewTableCell(t.Type))
		a.txs.SetCell(row+1, 2, tview.NewTableCell(fmt.Sprintf("%+.2f", t.Amount)).
			SetTextColor(color).SetAlign(tview.AlignRight))
		a.txs.SetCell(row+1, 3, tview.NewTableCell(t.Description))
	}
}

// sync pulls the first page of trips and transactions from the backend into
// the cache, then refreshes the tables.
func (a *App) sync() {
	a.setStatus("Syncing with backend...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tripPage, err := a.client.TripHistory(ctx, 1, pageSize)
	if err != nil {
		a.setStatus(fmt.Sprintf("[red]Trip sync failed: %v", err))
		return
	}
	if err := a.store.SaveTrips(ctx, tripPage.Items); err != nil {
		a.setStatus(fmt.Sprintf("[red]Trip cache write failed: %v", err))
		return
	}

	txPage, err := a.client.Transactions(ctx, 1, pageSize)
	if err != nil {
		a.setStatus(fmt.Sprintf("[red]Transaction sync failed: %v", err))
		return
	}
	if err := a.store.SaveTransactions(ctx, txPage.Items); err != nil {
		a.setStatus(fmt.Sprintf("[red]Transaction cache write failed: %v", err))
		return
	}

	a.tviewApp.QueueUpdateDraw(func() {
		a.reload()
		a.status.SetText(fmt.Sprintf("Synced %d trips, %d transactions at %s",
			len(tripPage.Items), len(txPage.Items), time.Now().Format("15:04:05")))
	})
}
