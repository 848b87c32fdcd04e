// Package geometry holds pure bounding-box helpers shared by the classifiers.
// Callers must only pass rects that satisfy types.Rect.Valid.
package geometry

import (
	"math"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Area returns the area of r, or 0 for degenerate rects
func Area(r types.Rect) float64 {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IntersectionOverUnion returns the overlap ratio of a and b in [0,1].
// Non-overlapping or zero-area inputs yield 0.
func IntersectionOverUnion(a, b types.Rect) float64 {
	areaA := Area(a)
	areaB := Area(b)
	if areaA == 0 || areaB == 0 {
		return 0
	}

	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	return inter / (areaA + areaB - inter)
}

// CenterOf returns the midpoint of r
func CenterOf(r types.Rect) types.Point {
	return types.Point{
		X: (r.X1 + r.X2) / 2,
		Y: (r.Y1 + r.Y2) / 2,
	}
}

// Contains reports whether p lies inside r, boundary included
func Contains(r types.Rect, p types.Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}
