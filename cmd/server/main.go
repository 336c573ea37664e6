package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kitbash-viewer/server/internal/config"
	"github.com/kitbash-viewer/server/internal/frontend"
	"github.com/kitbash-viewer/server/internal/hub"
	"github.com/kitbash-viewer/server/internal/mock"
	"github.com/kitbash-viewer/server/internal/status"
	"github.com/kitbash-viewer/server/internal/watcher"
	"github.com/kitbash-viewer/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	port := flag.Int("port", 0, "Override server port")
	host := flag.String("host", "", "Override bind address")
	sceneDir := flag.String("scene-dir", "", "Override directory to watch for mesh files")
	open := flag.Bool("open", false, "Auto-open browser on startup")
	demoMode := flag.Bool("demo", false, "Publish synthetic events instead of watching a directory")
	devMode := flag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	frontendDir := flag.String("frontend-dir", "internal/frontend/static", "Frontend directory for -dev mode")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *sceneDir != "" {
		cfg.Watch.Dir = *sceneDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New(cfg.Server.SendBuffer, cfg.Server.MaxConnections)

	if *demoMode {
		log.Println("Starting in demo mode (synthetic events)")
		gen := mock.NewGenerator(h, 0)
		go gen.Start(ctx)
	} else {
		source, err := watcher.NewSource(cfg.Watch.Dir, cfg.Watch.QueueSize)
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", cfg.Watch.Dir, err)
		}
		defer source.Close()

		engine := watcher.NewEngine(cfg.Watch.Suffix, cfg.Watch.Debounce, source.Raw(), h)
		go source.Run(ctx)
		go engine.Run(ctx)

		log.Printf("Watching %s for %s files", cfg.Watch.Dir, cfg.Watch.Suffix)
	}

	var embeddedHandler http.Handler
	if !*devMode {
		embeddedHandler = frontend.Handler()
	}

	server := ws.NewServer(cfg, h, status.NewCollector(), *frontendDir, *devMode, embeddedHandler)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		h.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Kitbash viewer running at http://%s", addr)

	if *open {
		if err := openBrowser("http://" + addr); err != nil {
			log.Printf("Failed to open browser: %v", err)
		}
	}

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
