// Package occupancytracker turns periodic photos of a co-working room into
// an append-only record of how many people are present and which tables and
// bean bags are in use.
//
// Basic usage:
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	t, err := occupancytracker.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer t.Close()
//
//	summary, err := t.RunOnce(ctx)
//
// A run enumerates the pending image directory in filename order and, for
// each image:
//
//  1. runs every configured detector (pkg/detection) and merges the boxes
//  2. judges each table by its bare-surface coverage and each bean bag by
//     overlap with detected people (pkg/occupancy)
//  3. appends one row to the usage dataset (pkg/dataset), mirroring it to
//     SQLite and Kafka when configured
//  4. writes an annotated copy (best-effort) and moves the source into the
//     processed directory (pkg/frame)
//
// Images that fail before step 3 stay pending and are retried next run. Runs
// keep no state in memory between invocations; only one run may operate on
// the same directories at a time.
package occupancytracker

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/occupancy-tracker/internal/config"
	"github.com/menta2k/occupancy-tracker/internal/utils"
	"github.com/menta2k/occupancy-tracker/pkg/batch"
	"github.com/menta2k/occupancy-tracker/pkg/client"
	"github.com/menta2k/occupancy-tracker/pkg/dataset"
	"github.com/menta2k/occupancy-tracker/pkg/detection"
	"github.com/menta2k/occupancy-tracker/pkg/frame"
	"github.com/menta2k/occupancy-tracker/pkg/furniture"
	"github.com/menta2k/occupancy-tracker/pkg/llamacpp"
	"github.com/menta2k/occupancy-tracker/pkg/ollama"
	"github.com/menta2k/occupancy-tracker/pkg/publish"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Version of the occupancy tracker
const Version = "1.0.0"

// Tracker is a fully wired pipeline
type Tracker struct {
	cfg       *config.Config
	detector  detection.Detector
	processor *frame.Processor
	driver    *batch.Driver
	closers   []func()
}

// New builds a tracker with the detectors described by cfg
func New(cfg *config.Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	det, err := BuildDetector(cfg.Detectors)
	if err != nil {
		return nil, err
	}
	return NewWithDetector(cfg, det)
}

// NewWithDetector builds a tracker around a caller-supplied detector. The
// detectors section of cfg is ignored.
func NewWithDetector(cfg *config.Config, det detection.Detector) (*Tracker, error) {
	layout, err := furniture.Load(cfg.Paths.Furniture)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d tables and %d bean bags from %s",
		layout.Count(types.CategoryTable), layout.Count(types.CategoryBeanbag), cfg.Paths.Furniture)

	t := &Tracker{cfg: cfg, detector: det}

	sink, err := t.buildSink()
	if err != nil {
		t.Close()
		return nil, err
	}

	opts := frame.Options{
		ProcessedDir:  cfg.Paths.ProcessedDir,
		OutputFormat:  cfg.Output.Format,
		OutputQuality: cfg.Output.Quality,
	}
	if cfg.Output.Annotate {
		if filepath.Clean(cfg.Paths.OutputDir) == filepath.Clean(cfg.Paths.InputDir) {
			t.Close()
			return nil, fmt.Errorf("%w: output directory must differ from input directory", types.ErrConfiguration)
		}
		opts.OutputDir = cfg.Paths.OutputDir
	}

	t.processor, err = frame.NewProcessor(det, layout, cfg.Thresholds, sink, opts)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.driver = batch.NewDriver(cfg.Paths.InputDir, t.processor)
	return t, nil
}

// buildSink opens the CSV dataset and any configured mirrors
func (t *Tracker) buildSink() (dataset.Sink, error) {
	primary, err := dataset.OpenCSV(t.cfg.Paths.Dataset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	tee := &dataset.Tee{Primary: primary}

	if t.cfg.Paths.SQLite != "" {
		db, err := dataset.OpenSQLite(t.cfg.Paths.SQLite)
		if err != nil {
			log.Printf("Warning: SQLite mirror disabled: %v", err)
		} else {
			tee.Mirrors = append(tee.Mirrors, db)
			t.closers = append(t.closers, func() { db.Close() })
		}
	}

	if k := t.cfg.Kafka; k.Brokers != "" {
		pub, err := publish.NewPublisher(publish.Config{
			BootstrapServers: k.Brokers,
			SecurityProtocol: k.SecurityProtocol,
			SASLMechanism:    k.SASLMechanism,
			SASLUsername:     k.SASLUsername,
			SASLPassword:     k.SASLPassword,
			Topic:            k.Topic,
		}, uuid.New().String())
		if err != nil {
			log.Printf("Warning: Kafka publishing disabled: %v", err)
		} else {
			tee.Mirrors = append(tee.Mirrors, pub)
			t.closers = append(t.closers, func() { pub.Close(10 * time.Second) })
		}
	}

	return tee, nil
}

// BuildDetector creates one adapted backend per entry and merges them in
// configuration order
func BuildDetector(cfgs []config.DetectorConfig) (detection.Detector, error) {
	multi := make(detection.Multi, 0, len(cfgs))
	for _, c := range cfgs {
		var backend detection.Backend
		switch c.Type {
		case "ollama", "llamacpp":
			var vc client.VisionClient
			var err error
			if c.Type == "ollama" {
				vc, err = ollama.NewClient(c.URL)
			} else {
				vc, err = llamacpp.NewClient(c.URL)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: detector %s: %v", types.ErrConfiguration, c.Name, err)
			}
			backend = detection.NewVisionBackend(c.Name, vc, c.Model, c.SendSize).WithPrompt(c.Prompt)
		case "inference":
			b, err := detection.NewInferenceBackend(c.Name, c.URL, c.ClassNames)
			if err != nil {
				return nil, fmt.Errorf("%w: detector %s: %v", types.ErrConfiguration, c.Name, err)
			}
			backend = b
		default:
			return nil, fmt.Errorf("%w: detector %s: unknown type %q", types.ErrConfiguration, c.Name, c.Type)
		}
		multi = append(multi, detection.Adapt(backend, c.MinConfidence))
	}
	return multi, nil
}

// RunOnce drains the pending directory once
func (t *Tracker) RunOnce(ctx context.Context) (*batch.Summary, error) {
	if err := ensureDirs(t.cfg); err != nil {
		return nil, err
	}
	return t.driver.Run(ctx)
}

// Loop runs a batch every interval until ctx is done
func (t *Tracker) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := t.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Run failed: %v", err)
		}
		log.Printf("Next run in %v", interval)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func ensureDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.Paths.InputDir, cfg.Paths.ProcessedDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// CheckDetectors probes every detector backend that supports a health check
func (t *Tracker) CheckDetectors(ctx context.Context) error {
	if hc, ok := t.detector.(detection.HealthChecker); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

// Processor exposes the single-image pipeline
func (t *Tracker) Processor() *frame.Processor {
	return t.processor
}

// Close releases mirrors
func (t *Tracker) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
	t.closers = nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
