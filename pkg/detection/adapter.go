package detection

import (
	"strings"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// RawPrediction is one box as reported by a model, before normalization.
// ClassName wins over ClassID when both are set. A nil Confidence means the
// model does not report one.
type RawPrediction struct {
	ClassID    int
	ClassName  string
	Box        types.Rect
	Confidence *float64
}

// ModelOutput is the raw result of one detection pass
type ModelOutput struct {
	// Model identifies the pass in logs and overlays.
	Model string

	// ClassNames resolves ClassID for predictions without a ClassName.
	ClassNames []string

	Predictions []RawPrediction
}

// CategoryFor maps a model class name onto the three tracked categories by
// case-insensitive substring match. Unrelated classes map to CategoryUnknown.
func CategoryFor(className string) types.Category {
	name := strings.ToLower(className)
	compact := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
	switch {
	case strings.Contains(name, "person"):
		return types.CategoryPerson
	case strings.Contains(compact, "beanbag"):
		return types.CategoryBeanbag
	case strings.Contains(name, "table"):
		return types.CategoryTable
	}
	return types.CategoryUnknown
}

// Normalize converts one model's raw output into detections. Unmapped
// classes, invalid boxes and predictions below minConfidence are dropped.
func Normalize(out ModelOutput, minConfidence float64) []types.Detection {
	dets := make([]types.Detection, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		name := p.ClassName
		if name == "" {
			if p.ClassID < 0 || p.ClassID >= len(out.ClassNames) {
				continue
			}
			name = out.ClassNames[p.ClassID]
		}

		cat := CategoryFor(name)
		if cat == types.CategoryUnknown {
			continue
		}
		if !p.Box.Valid() {
			continue
		}

		conf := 1.0
		if p.Confidence != nil {
			conf = clamp(*p.Confidence, 0, 1)
		}
		if conf < minConfidence {
			continue
		}

		dets = append(dets, types.Detection{
			Category:   cat,
			Box:        p.Box,
			Confidence: conf,
			Source:     out.Model,
		})
	}
	return dets
}

// OfCategory filters detections down to one category
func OfCategory(dets []types.Detection, cat types.Category) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
