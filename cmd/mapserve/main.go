// Bus Map Web Server
// Serves a browser map surface over WebSocket, driven by the same
// poller/bridge/controller stack the mobile screens use.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gobangladesh/bustrack/internal/surface"
	"github.com/gobangladesh/bustrack/pkg/bridge"
	"github.com/gobangladesh/bustrack/pkg/config"
	"github.com/gobangladesh/bustrack/pkg/location"
	"github.com/gobangladesh/bustrack/pkg/mapview"
	"github.com/gobangladesh/bustrack/pkg/transit"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	orgID      = flag.String("org", "", "Organization id (overrides config)")
)

//go:embed map.html
var mapPage []byte

// Server holds the HTTP server and its collaborators.
type Server struct {
	router     *chi.Mux
	ws         *surface.WSSurface
	controller *mapview.Controller
}

func main() {
	flag.Parse()

	log.Println("Starting bus map server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *orgID != "" {
		cfg.API.OrganizationID = *orgID
	}
	if cfg.API.OrganizationID == "" {
		log.Fatal("An organization id is required (config or -org)")
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

	srv := &Server{router: chi.NewRouter()}

	srv.ws = surface.NewWSSurface(func(event string) {
		srv.controller.HandleSurfaceEvent(event)
	})

	b := bridge.New(srv.ws, cfg.Map.FitPadding)
	b.SetDefaultRegion(cfg.Map.DefaultRegion())
	srv.controller = mapview.NewController(poller, resolver, b,
		transit.Filter{OrganizationID: cfg.API.OrganizationID, RouteID: cfg.API.RouteID},
		mapview.Listener{
			OnNotice: func(msg string) { log.Printf("Notice: %s", msg) },
		},
	)

	srv.setupRoutes()
	srv.controller.Mount()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Map server listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down map server...")
	srv.controller.Unmount()
	srv.ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.ws.ServeHTTP)
	r.Get("/api/v1/status", s.handleStatus)
}

// handleIndex serves the embedded map page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(mapPage)
}

// handleStatus reports the live-map state for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, refreshing := s.controller.State()

	status := map[string]interface{}{
		"state":      state.String(),
		"refreshing": refreshing,
		"clients":    s.ws.ClientCount(),
	}
	if err := s.controller.LastError(); err != nil {
		status["lastError"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
