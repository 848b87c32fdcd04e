package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/occupancy-tracker/internal/config"
	"github.com/menta2k/occupancy-tracker/pkg/api"
	"github.com/menta2k/occupancy-tracker/pkg/dataset"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	var configPath, addr string
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (JSON)")
	flag.StringVar(&addr, "addr", "", "listen address (overrides api.addr)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.API.Addr = addr
	}

	app := &api.App{DatasetPath: cfg.Paths.Dataset}
	if cfg.Paths.SQLite != "" {
		db, err := dataset.OpenSQLite(cfg.Paths.SQLite)
		if err != nil {
			log.Printf("Warning: SQLite history unavailable, reading %s: %v", cfg.Paths.Dataset, err)
		} else {
			defer db.Close()
			app.History = db
		}
	}

	server := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Serving status for %s on %s", cfg.Paths.Dataset, cfg.API.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
