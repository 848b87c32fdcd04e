package geometry

import (
	"math"
	"testing"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

func TestIntersectionOverUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Rect
		want float64
	}{
		{"identical", types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, 1.0},
		{"disjoint", types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, types.Rect{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0},
		{"touching edge", types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, types.Rect{X1: 10, Y1: 0, X2: 20, Y2: 10}, 0},
		{"partial overlap", types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, types.Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}, 25.0 / 175.0},
		{"contained", types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, types.Rect{X1: 0, Y1: 0, X2: 5, Y2: 10}, 0.5},
		{"degenerate", types.Rect{X1: 5, Y1: 5, X2: 5, Y2: 5}, types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, 0},
		{"both degenerate", types.Rect{X1: 5, Y1: 5, X2: 5, Y2: 5}, types.Rect{X1: 5, Y1: 5, X2: 5, Y2: 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntersectionOverUnion(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU: got %f, want %f", got, tt.want)
			}
			// symmetric
			if rev := IntersectionOverUnion(tt.b, tt.a); rev != got {
				t.Errorf("IoU not symmetric: %f vs %f", got, rev)
			}
			if got < 0 || got > 1 {
				t.Errorf("IoU out of range: %f", got)
			}
		})
	}
}

func TestIntersectionOverUnion_SelfIsOne(t *testing.T) {
	rects := []types.Rect{
		{X1: 0, Y1: 0, X2: 1, Y2: 1},
		{X1: 12.5, Y1: 3, X2: 99.25, Y2: 40},
		{X1: 100, Y1: 200, X2: 640, Y2: 480},
	}
	for _, r := range rects {
		if got := IntersectionOverUnion(r, r); math.Abs(got-1) > 1e-9 {
			t.Errorf("IoU(%v, self): got %f, want 1", r, got)
		}
	}
}

func TestArea(t *testing.T) {
	if got := Area(types.Rect{X1: 2, Y1: 3, X2: 12, Y2: 8}); got != 50 {
		t.Errorf("Expected area 50, got %f", got)
	}
	if got := Area(types.Rect{X1: 2, Y1: 3, X2: 2, Y2: 8}); got != 0 {
		t.Errorf("Expected area 0 for zero-width rect, got %f", got)
	}
}

func TestCenterOf(t *testing.T) {
	c := CenterOf(types.Rect{X1: 10, Y1: 20, X2: 110, Y2: 100})
	if c.X != 60 || c.Y != 60 {
		t.Errorf("Expected center (60,60), got (%f,%f)", c.X, c.Y)
	}
}

func TestContains(t *testing.T) {
	r := types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	tests := []struct {
		name string
		p    types.Point
		want bool
	}{
		{"inside", types.Point{X: 5, Y: 5}, true},
		{"top-left corner", types.Point{X: 0, Y: 0}, true},
		{"bottom-right corner", types.Point{X: 10, Y: 10}, true},
		{"on right edge", types.Point{X: 10, Y: 3}, true},
		{"left of box", types.Point{X: -0.01, Y: 5}, false},
		{"below box", types.Point{X: 5, Y: 10.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(r, tt.p); got != tt.want {
				t.Errorf("Contains(%v): got %v, want %v", tt.p, got, tt.want)
			}
		})
	}

	degenerate := types.Rect{X1: 4, Y1: 4, X2: 4, Y2: 4}
	if !Contains(degenerate, types.Point{X: 4, Y: 4}) {
		t.Error("degenerate rect should contain its own corner")
	}
}
