package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	occupancytracker "github.com/menta2k/occupancy-tracker"
	"github.com/menta2k/occupancy-tracker/internal/config"
	"github.com/menta2k/occupancy-tracker/internal/utils"
	"github.com/menta2k/occupancy-tracker/pkg/furniture"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	var configPath, in, dataset, file string
	var interval time.Duration
	var initConfig, check, version bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (JSON); defaults are used if it does not exist")
	flag.StringVar(&in, "in", "", "pending image directory (overrides paths.input_dir)")
	flag.StringVar(&dataset, "dataset", "", "usage dataset CSV (overrides paths.dataset)")
	flag.StringVar(&file, "file", "", "process a single image instead of the whole directory")
	flag.DurationVar(&interval, "interval", 0, "repeat the batch every interval (e.g. 10m); 0 runs once")
	flag.BoolVar(&initConfig, "init-config", false, "write the default configuration to -config and exit")
	flag.BoolVar(&check, "check", false, "probe the configured detector backends before running")
	flag.BoolVar(&version, "version", false, "print version and exit")
	flag.Parse()

	if version {
		log.Printf("occupancy %s", occupancytracker.GetVersion())
		return
	}

	if initConfig {
		cfg := config.Default()
		if err := cfg.SaveToFile(configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("wrote %s", configPath)

		if !utils.FileExists(cfg.Paths.Furniture) {
			if err := sampleLayout().Save(cfg.Paths.Furniture); err != nil {
				log.Fatalf("Failed to write furniture layout: %v", err)
			}
			log.Printf("wrote %s, edit the boxes to match the camera view", cfg.Paths.Furniture)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if in != "" {
		cfg.Paths.InputDir = in
	}
	if dataset != "" {
		cfg.Paths.Dataset = dataset
	}

	tracker, err := occupancytracker.New(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer tracker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if check {
		if err := tracker.CheckDetectors(ctx); err != nil {
			log.Printf("Detector check failed: %v", err)
			tracker.Close()
			os.Exit(1)
		}
		log.Printf("Detectors reachable")
	}

	switch {
	case file != "":
		out, err := tracker.Processor().Process(ctx, file)
		if err != nil {
			log.Printf("failed: %v", err)
			tracker.Close()
			os.Exit(1)
		}
		r := out.Result
		log.Printf("processed %s: people=%d tables=%d/%d beanbags=%d/%d -> %s",
			r.Filename, r.PeopleCount, r.TableUsed, r.TableTotal, r.BeanbagUsed, r.BeanbagTotal, out.ProcessedPath)

	case interval > 0:
		log.Printf("Running every %v (Ctrl+C to stop)", interval)
		if err := tracker.Loop(ctx, interval); err != nil {
			log.Printf("Loop stopped: %v", err)
		}

	default:
		summary, err := tracker.RunOnce(ctx)
		if err != nil {
			log.Printf("Run failed: %v", err)
			tracker.Close()
			os.Exit(1)
		}
		if summary.Failed > 0 {
			log.Printf("%d images left pending for the next run", summary.Failed)
		}
	}
}

// sampleLayout is a starting point for a new furniture file
func sampleLayout() *furniture.Layout {
	return &furniture.Layout{Items: []types.FurnitureItem{
		{ID: "T1", Category: types.CategoryTable, Box: types.Rect{X1: 100, Y1: 100, X2: 400, Y2: 300}},
		{ID: "T2", Category: types.CategoryTable, Box: types.Rect{X1: 500, Y1: 100, X2: 800, Y2: 300}},
		{ID: "B1", Category: types.CategoryBeanbag, Box: types.Rect{X1: 150, Y1: 450, X2: 350, Y2: 650}},
	}}
}
