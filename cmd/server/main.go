package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/skillsprint/backend/internal/config"
	"github.com/skillsprint/backend/internal/mock"
	"github.com/skillsprint/backend/internal/progression"
	"github.com/skillsprint/backend/internal/server"
	"github.com/skillsprint/backend/internal/store"
	"github.com/skillsprint/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate demo study events")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	var gateway progression.Gateway
	switch cfg.Storage.Driver {
	case "", "file":
		gateway = store.NewFileStore(cfg.Storage.Path)
	case "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			path = "skillsprint.db"
		}
		gateway, err = store.OpenDB(path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
	default:
		log.Fatalf("Unknown storage driver: %q", cfg.Storage.Driver)
	}

	engine, err := progression.NewEngine(progression.NewCatalog())
	if err != nil {
		log.Fatalf("Invalid catalog: %v", err)
	}

	tracker := progression.NewTracker(engine, gateway, cfg.Storage.SaveDebounce.Std())
	broadcaster := ws.NewBroadcaster()
	tracker.OnUnlock(func(userID string, unlocks []progression.Unlock, xp progression.XPSummary) {
		broadcaster.BroadcastUnlocks(userID, unlocks, xp)
		// Follow the unlock banner with a full snapshot so clients can
		// redraw streak and stats without a REST round trip.
		if view, err := tracker.Progress(context.Background(), userID); err == nil {
			broadcaster.BroadcastProgress(userID, view)
		}
	})

	srv := server.New(tracker, gateway, broadcaster, cfg.Server.AllowedOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		log.Println("Starting in mock mode (generated study events)")
		mock.NewGenerator(tracker).Start(ctx)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		tracker.FlushAll()
		os.Exit(0)
	}()

	if err := server.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
