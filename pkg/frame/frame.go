// Package frame runs one image through detection, classification, recording
// and relocation.
package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"time"

	"github.com/menta2k/occupancy-tracker/internal/utils"
	"github.com/menta2k/occupancy-tracker/pkg/dataset"
	"github.com/menta2k/occupancy-tracker/pkg/detection"
	"github.com/menta2k/occupancy-tracker/pkg/furniture"
	"github.com/menta2k/occupancy-tracker/pkg/occupancy"
	"github.com/menta2k/occupancy-tracker/pkg/processing"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// State is a step of the per-image pipeline
type State int

const (
	StateLoaded State = iota
	StateDetected
	StateClassified
	StateRecorded
	StateRelocated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateDetected:
		return "detected"
	case StateClassified:
		return "classified"
	case StateRecorded:
		return "recorded"
	case StateRelocated:
		return "relocated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Failure reports the last state an image reached before it failed
type Failure struct {
	File  string
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: failed after %s: %v", filepath.Base(f.File), f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Options controls where a processed frame ends up
type Options struct {
	// ProcessedDir receives the source image after its row is recorded.
	ProcessedDir string

	// OutputDir receives the annotated copy. Empty disables annotation. It
	// must not be the processed directory nor the directory images come from.
	OutputDir string

	// OutputFormat is jpg, png or webp. Empty keeps the source extension.
	OutputFormat  string
	OutputQuality int
}

// Outcome is everything derived from one successfully processed image
type Outcome struct {
	Result        types.FrameResult
	Detections    []types.Detection
	Slots         []processing.Slot
	ProcessedPath string
	AnnotatedPath string
}

// imageIO is the slice of processing.Processor a frame needs
type imageIO interface {
	LoadImage(path string) (image.Image, error)
	Annotate(img image.Image, detections []types.Detection, slots []processing.Slot, header string) image.Image
	SaveImage(img image.Image, path, format string, quality int, lossless bool) error
}

// Processor owns the per-image pipeline. It holds no state between images.
type Processor struct {
	detector detection.Detector
	layout   *furniture.Layout
	tables   occupancy.Classifier
	beanbags occupancy.Classifier
	sink     dataset.Sink
	images   imageIO
	opts     Options
	now      func() time.Time
}

// NewProcessor wires a processor. Tables are judged by appearance and bean
// bags by overlap with people, both tuned by thresholds.
func NewProcessor(det detection.Detector, layout *furniture.Layout, thresholds occupancy.Thresholds, sink dataset.Sink, opts Options) (*Processor, error) {
	if det == nil {
		return nil, fmt.Errorf("%w: no detector configured", types.ErrConfiguration)
	}
	if layout == nil {
		return nil, fmt.Errorf("%w: no furniture layout", types.ErrConfiguration)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: no dataset sink", types.ErrConfiguration)
	}
	if opts.ProcessedDir == "" {
		return nil, fmt.Errorf("%w: processed directory is required", types.ErrConfiguration)
	}
	if opts.OutputDir != "" && sameDir(opts.OutputDir, opts.ProcessedDir) {
		return nil, fmt.Errorf("%w: output directory must differ from processed directory", types.ErrConfiguration)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if opts.OutputQuality <= 0 {
		opts.OutputQuality = 90
	}

	return &Processor{
		detector: det,
		layout:   layout,
		tables:   occupancy.NewAppearanceClassifier(thresholds),
		beanbags: occupancy.NewOverlapClassifier(thresholds),
		sink:     sink,
		images:   processing.NewProcessor(),
		opts:     opts,
		now:      time.Now,
	}, nil
}

// WithClock replaces the wall clock used for timestamp fallback and
// conflict suffixes
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Process runs one image to completion. On failure the returned error is a
// *Failure; if it failed before being recorded the source is left in place.
func (p *Processor) Process(ctx context.Context, path string) (out *Outcome, err error) {
	state := StateLoaded
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Failure{File: path, State: state, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	img, err := p.images.LoadImage(path)
	if err != nil {
		return nil, &Failure{File: path, State: state, Err: fmt.Errorf("%w: %v", types.ErrDetection, err)}
	}

	dets, err := p.detector.Detect(ctx, detection.Input{Path: path, Image: img})
	if err != nil {
		return nil, &Failure{File: path, State: state, Err: fmt.Errorf("%w: %v", types.ErrDetection, err)}
	}
	state = StateDetected

	result, slots := p.classify(img, dets)
	result.Filename = filepath.Base(path)
	ts, ok := TimestampFor(result.Filename, p.now())
	if !ok {
		log.Printf("No capture time in %s, using current time", result.Filename)
	}
	result.Timestamp = ts
	state = StateClassified

	if err := p.sink.Append(result); err != nil {
		return nil, &Failure{File: path, State: state, Err: err}
	}
	state = StateRecorded

	out = &Outcome{Result: result, Detections: dets, Slots: slots}
	if p.opts.OutputDir != "" {
		annotated, err := p.safeAnnotate(img, path, out)
		if err != nil {
			log.Printf("Warning: %s: %v", result.Filename, err)
		}
		out.AnnotatedPath = annotated
	}

	dst, conflict, err := utils.MoveFile(path, p.opts.ProcessedDir, p.now())
	if err != nil {
		return nil, &Failure{File: path, State: state, Err: err}
	}
	if conflict {
		log.Printf("%v: %s already processed once, stored as %s", types.ErrWriteConflict, result.Filename, filepath.Base(dst))
	}
	out.ProcessedPath = dst
	return out, nil
}

// classify counts people and evaluates every furniture slot
func (p *Processor) classify(img image.Image, dets []types.Detection) (types.FrameResult, []processing.Slot) {
	var people []types.Rect
	for _, d := range detection.OfCategory(dets, types.CategoryPerson) {
		people = append(people, d.Box)
	}
	frame := occupancy.Frame{Image: img, People: people}

	result := types.FrameResult{PeopleCount: len(people)}
	slots := make([]processing.Slot, 0, len(p.layout.Items))
	for _, item := range p.layout.Items {
		var used bool
		switch item.Category {
		case types.CategoryTable:
			used = p.tables.Used(item, frame)
			result.TableTotal++
			if used {
				result.TableUsed++
			}
		case types.CategoryBeanbag:
			used = p.beanbags.Used(item, frame)
			result.BeanbagTotal++
			if used {
				result.BeanbagUsed++
			}
		default:
			continue
		}
		slots = append(slots, processing.Slot{Item: item, Used: used})
	}
	return result, slots
}

// safeAnnotate runs annotate, turning a panic into an annotation error so the
// image is still relocated
func (p *Processor) safeAnnotate(img image.Image, path string, out *Outcome) (dst string, err error) {
	defer func() {
		if r := recover(); r != nil {
			dst = ""
			err = fmt.Errorf("%w: panic: %v", types.ErrAnnotationWrite, r)
		}
	}()
	return p.annotate(img, path, out)
}

// annotate writes the overlay copy. Failures wrap types.ErrAnnotationWrite.
func (p *Processor) annotate(img image.Image, path string, out *Outcome) (string, error) {
	if sameDir(p.opts.OutputDir, filepath.Dir(path)) {
		return "", fmt.Errorf("%w: output directory %s holds the source image", types.ErrAnnotationWrite, p.opts.OutputDir)
	}

	r := out.Result
	header := fmt.Sprintf("%s  people=%d  tables=%d/%d  beanbags=%d/%d",
		r.Timestamp.Format(dataset.TimestampLayout), r.PeopleCount,
		r.TableUsed, r.TableTotal, r.BeanbagUsed, r.BeanbagTotal)
	overlay := p.images.Annotate(img, out.Detections, out.Slots, header)

	if err := utils.EnsureDir(p.opts.OutputDir); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAnnotationWrite, err)
	}
	dst, err := utils.FreePath(utils.GenerateOutputFilename(path, p.opts.OutputDir, "", "", p.opts.OutputFormat), p.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAnnotationWrite, err)
	}
	format := utils.GetFileExtension(dst)
	if err := p.images.SaveImage(overlay, dst, format, p.opts.OutputQuality, false); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAnnotationWrite, err)
	}
	return dst, nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// IsRetryable reports whether the image failed before its row was recorded,
// so reprocessing it cannot duplicate a row
func IsRetryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.State < StateRecorded
	}
	return false
}
