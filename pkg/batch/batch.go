// Package batch drains the pending-image directory one image at a time.
package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/occupancy-tracker/internal/utils"
	"github.com/menta2k/occupancy-tracker/pkg/frame"
)

// FrameProcessor handles a single image
type FrameProcessor interface {
	Process(ctx context.Context, path string) (*frame.Outcome, error)
}

// Summary reports what one run did
type Summary struct {
	RunID     string
	Processed int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Failures  map[string]error
}

// Driver runs batches over InputDir. Only one driver may run against the
// same directories at a time.
type Driver struct {
	InputDir  string
	Processor FrameProcessor
	Logger    *log.Logger
}

// NewDriver creates a driver logging to stderr
func NewDriver(inputDir string, p FrameProcessor) *Driver {
	return &Driver{
		InputDir:  inputDir,
		Processor: p,
		Logger:    log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// Run processes every pending image in filename order. Per-image failures
// are logged and counted; the returned error is only for failures of the
// run itself (unreadable input directory, cancelled context).
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	s := &Summary{RunID: uuid.New().String(), Failures: map[string]error{}}
	logger := d.logger(s.RunID)

	files, err := utils.ListImageFiles(d.InputDir)
	if err != nil {
		return s, fmt.Errorf("failed to list %s: %w", d.InputDir, err)
	}
	if len(files) == 0 {
		logger.Printf("No pending images in %s", d.InputDir)
		s.Duration = time.Since(start)
		return s, nil
	}
	logger.Printf("Processing %d pending images from %s", len(files), d.InputDir)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			s.Skipped = len(files) - i
			s.Duration = time.Since(start)
			logger.Printf("Run cancelled, %d images left pending", s.Skipped)
			return s, err
		}

		name := filepath.Base(path)
		out, err := d.Processor.Process(ctx, path)
		if err != nil {
			s.Failed++
			s.Failures[name] = err
			if frame.IsRetryable(err) {
				logger.Printf("failed %s: %v", name, err)
			} else {
				logger.Printf("failed %s after recording, next run will record it again: %v", name, err)
			}
			continue
		}

		s.Processed++
		r := out.Result
		logger.Printf("processed %s: people=%d tables=%d/%d beanbags=%d/%d",
			name, r.PeopleCount, r.TableUsed, r.TableTotal, r.BeanbagUsed, r.BeanbagTotal)
	}

	s.Duration = time.Since(start)
	logger.Printf("Run finished in %v: processed=%d failed=%d skipped=%d",
		s.Duration, s.Processed, s.Failed, s.Skipped)
	return s, nil
}

func (d *Driver) logger(runID string) *log.Logger {
	base := d.Logger
	if base == nil {
		base = log.Default()
	}
	return log.New(base.Writer(), fmt.Sprintf("[%s] ", runID[:8]), base.Flags())
}
