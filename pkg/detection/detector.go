// Package detection turns model outputs into typed, confidence-scored boxes.
//
// A Backend runs one model pass and reports raw predictions with the model's
// own class names. Adapt wraps a Backend into a Detector that normalizes those
// predictions onto the person/table/beanbag categories, and Multi composes any
// number of Detectors by concatenation. Backends provided here:
//
//   - VisionBackend: a chat-style vision model (Ollama or llama.cpp) prompted
//     for a JSON list of objects
//   - InferenceBackend: an HTTP inference server (e.g. a YOLO service) that
//     accepts a multipart image upload
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Input is the image handed to every detector for one frame
type Input struct {
	// Path is the source file; backends that upload raw bytes read it.
	Path string

	// Image is the decoded, orientation-corrected image.
	Image image.Image
}

// Backend runs one raw detection pass
type Backend interface {
	Name() string
	Predict(ctx context.Context, in Input) (*ModelOutput, error)
}

// Detector produces normalized detections for one image
type Detector interface {
	Detect(ctx context.Context, in Input) ([]types.Detection, error)
}

// HealthChecker is implemented by backends that can probe their server
// without running a detection
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Adapted is a Backend whose output is normalized
type Adapted struct {
	backend       Backend
	minConfidence float64
}

// Adapt wraps a Backend into a Detector, dropping predictions below
// minConfidence
func Adapt(b Backend, minConfidence float64) *Adapted {
	return &Adapted{backend: b, minConfidence: minConfidence}
}

// Detect implements Detector
func (a *Adapted) Detect(ctx context.Context, in Input) ([]types.Detection, error) {
	out, err := a.backend.Predict(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.backend.Name(), err)
	}
	if out == nil {
		return []types.Detection{}, nil
	}
	if out.Model == "" {
		out.Model = a.backend.Name()
	}
	return Normalize(*out, a.minConfidence), nil
}

// CheckHealth probes the backend when it supports it
func (a *Adapted) CheckHealth(ctx context.Context) error {
	hc, ok := a.backend.(HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.CheckHealth(ctx); err != nil {
		return fmt.Errorf("%s: %w", a.backend.Name(), err)
	}
	return nil
}

// Multi runs every detector in order and concatenates their results. Any
// single failure fails the whole frame.
type Multi []Detector

// Detect implements Detector
func (m Multi) Detect(ctx context.Context, in Input) ([]types.Detection, error) {
	all := []types.Detection{}
	for _, d := range m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dets, err := d.Detect(ctx, in)
		if err != nil {
			return nil, err
		}
		all = append(all, dets...)
	}
	return all, nil
}

// CheckHealth probes every member that supports it and joins the failures
func (m Multi) CheckHealth(ctx context.Context) error {
	var errs []error
	for _, d := range m {
		if hc, ok := d.(HealthChecker); ok {
			if err := hc.CheckHealth(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Func adapts a plain function to Detector
type Func func(ctx context.Context, in Input) ([]types.Detection, error)

// Detect implements Detector
func (f Func) Detect(ctx context.Context, in Input) ([]types.Detection, error) {
	return f(ctx, in)
}
