// Package occupancy decides whether a furniture slot is in use.
//
// Two strategies are provided:
//
//   - OverlapClassifier (bean bags): used when any person box overlaps the
//     slot with IoU above a threshold, or has its center inside the slot.
//   - AppearanceClassifier (tables): used when too little of the table top
//     shows the bare surface color, i.e. something is lying on it.
//
// Neither strategy depends on a detector; both can be driven with synthetic
// boxes and pixels.
package occupancy

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/occupancy-tracker/pkg/geometry"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Frame is what a classifier may look at for one image
type Frame struct {
	Image  image.Image
	People []types.Rect
}

// Classifier decides used/free for a single furniture slot
type Classifier interface {
	Used(item types.FurnitureItem, frame Frame) bool
}

// OverlapClassifier marks a slot used when a person sits on or over it
type OverlapClassifier struct {
	IoU float64
}

// NewOverlapClassifier creates an overlap classifier from thresholds
func NewOverlapClassifier(t Thresholds) *OverlapClassifier {
	return &OverlapClassifier{IoU: t.IoU}
}

// Used implements Classifier
func (c *OverlapClassifier) Used(item types.FurnitureItem, frame Frame) bool {
	return PersonOnSlot(item.Box, frame.People, c.IoU)
}

// PersonOnSlot reports whether any person box has IoU > iou with slot or a
// center inside it. A seated person's box is usually taller than the seat,
// so the center test catches poses the IoU test misses.
func PersonOnSlot(slot types.Rect, people []types.Rect, iou float64) bool {
	for _, p := range people {
		if geometry.IntersectionOverUnion(slot, p) > iou {
			return true
		}
		if geometry.Contains(slot, geometry.CenterOf(p)) {
			return true
		}
	}
	return false
}

// AppearanceClassifier marks a table used when its bare surface is occluded
type AppearanceClassifier struct {
	Surface    HSVRange
	Coverage   float64
	BlurRadius float64
}

// NewAppearanceClassifier creates an appearance classifier from thresholds
func NewAppearanceClassifier(t Thresholds) *AppearanceClassifier {
	return &AppearanceClassifier{
		Surface:    t.Surface,
		Coverage:   t.SurfaceCoverage,
		BlurRadius: t.BlurRadius,
	}
}

// Used implements Classifier. A table whose box falls outside the image is free.
func (c *AppearanceClassifier) Used(item types.FurnitureItem, frame Frame) bool {
	if frame.Image == nil {
		return false
	}
	coverage, ok := SurfaceCoverage(frame.Image, item.Box, c.Surface, c.BlurRadius)
	if !ok {
		return false
	}
	return coverage < c.Coverage
}

// SurfaceCoverage returns the fraction of opaque pixels inside box whose color
// falls in surface. ok is false when the box does not cover any pixel of img.
func SurfaceCoverage(img image.Image, box types.Rect, surface HSVRange, blurRadius float64) (float64, bool) {
	rect := pixelRect(box).Intersect(img.Bounds())
	if rect.Empty() {
		return 0, false
	}

	var crop image.Image = imaging.Crop(img, rect)
	if blurRadius > 0 {
		crop = blur.Gaussian(crop, blurRadius)
	}

	b := crop.Bounds()
	total, bare := 0, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(crop.At(x, y))
			if !ok {
				// fully transparent
				continue
			}
			total++
			h, s, v := c.Hsv()
			if surface.Contains(h, s, v) {
				bare++
			}
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(bare) / float64(total), true
}

// pixelRect converts a float box to the pixel rectangle it covers
func pixelRect(r types.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X1)),
		int(math.Floor(r.Y1)),
		int(math.Ceil(r.X2)),
		int(math.Ceil(r.Y2)),
	)
}
