package occupancy

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// createInMemoryImage creates an in-memory test image filled with c
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createCoverageImage creates a 10x10 image whose first bareColumns columns are
// white and the rest black, giving a surface coverage of bareColumns/10
func createCoverageImage(bareColumns int) *image.RGBA {
	img := createInMemoryImage(10, 10, black)
	for y := 0; y < 10; y++ {
		for x := 0; x < bareColumns; x++ {
			img.Set(x, y, white)
		}
	}
	return img
}

func TestOverlapClassifier(t *testing.T) {
	c := NewOverlapClassifier(DefaultThresholds())
	beanbag := types.FurnitureItem{ID: "B1", Category: types.CategoryBeanbag, Box: types.Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}}

	tests := []struct {
		name   string
		people []types.Rect
		want   bool
	}{
		{"no people", nil, false},
		{"identical box", []types.Rect{beanbag.Box}, true},
		{"person far away", []types.Rect{{X1: 400, Y1: 400, X2: 450, Y2: 500}}, false},
		{"tall person centered on seat", []types.Rect{{X1: 130, Y1: 0, X2: 170, Y2: 300}}, true},
		{"large overlap, center outside", []types.Rect{{X1: 150, Y1: 100, X2: 260, Y2: 200}}, true},
		{"small overlap, center outside", []types.Rect{{X1: 190, Y1: 190, X2: 300, Y2: 300}}, false},
		{"one of many", []types.Rect{{X1: 400, Y1: 400, X2: 450, Y2: 500}, {X1: 110, Y1: 110, X2: 190, Y2: 190}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Used(beanbag, Frame{People: tt.people})
			if got != tt.want {
				t.Errorf("Used: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPersonOnSlot_Boundaries(t *testing.T) {
	slot := types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	// touching box: IoU 0 and center (15,5) outside the slot
	person := types.Rect{X1: 10, Y1: 0, X2: 20, Y2: 10}
	half := types.Rect{X1: 0, Y1: 0, X2: 20, Y2: 10}
	if PersonOnSlot(slot, []types.Rect{person}, 0.2) {
		t.Error("touching person should not occupy the slot")
	}
	// half has IoU 0.5 and center (10,5) on the boundary: boundary counts
	if !PersonOnSlot(slot, []types.Rect{half}, 0.9) {
		t.Error("center on the boundary should occupy the slot")
	}
}

func TestAppearanceClassifier_Boundary(t *testing.T) {
	c := NewAppearanceClassifier(DefaultThresholds())
	table := types.FurnitureItem{ID: "T1", Category: types.CategoryTable, Box: types.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}}

	tests := []struct {
		name        string
		bareColumns int
		want        bool
	}{
		{"all white", 10, false},
		{"80% bare", 8, false},
		{"exactly at threshold", 7, false},
		{"just below threshold", 6, true},
		{"all black", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := createCoverageImage(tt.bareColumns)
			coverage, ok := SurfaceCoverage(img, table.Box, c.Surface, 0)
			if !ok {
				t.Fatal("expected a non-empty crop")
			}
			if tt.want && coverage >= c.Coverage {
				t.Errorf("USED table must have coverage below %f, got %f", c.Coverage, coverage)
			}
			if !tt.want && coverage < c.Coverage {
				t.Errorf("FREE table must have coverage >= %f, got %f", c.Coverage, coverage)
			}
			if got := c.Used(table, Frame{Image: img}); got != tt.want {
				t.Errorf("Used: got %v, want %v (coverage %f)", got, tt.want, coverage)
			}
		})
	}
}

func TestAppearanceClassifier_OutsideImageIsFree(t *testing.T) {
	c := NewAppearanceClassifier(DefaultThresholds())
	img := createInMemoryImage(50, 50, black)

	outside := types.FurnitureItem{ID: "T9", Category: types.CategoryTable, Box: types.Rect{X1: 100, Y1: 100, X2: 150, Y2: 150}}
	if c.Used(outside, Frame{Image: img}) {
		t.Error("table outside the image should be FREE")
	}

	degenerate := types.FurnitureItem{ID: "T0", Category: types.CategoryTable, Box: types.Rect{X1: 10, Y1: 10, X2: 10, Y2: 10}}
	if c.Used(degenerate, Frame{Image: img}) {
		t.Error("zero-area table should be FREE")
	}

	if c.Used(outside, Frame{}) {
		t.Error("missing image should classify FREE")
	}
}

func TestAppearanceClassifier_PartiallyOutside(t *testing.T) {
	c := NewAppearanceClassifier(DefaultThresholds())
	img := createInMemoryImage(20, 20, white)

	// only the in-bounds part (all white) is measured
	table := types.FurnitureItem{ID: "T2", Box: types.Rect{X1: 10, Y1: 10, X2: 40, Y2: 40}}
	coverage, ok := SurfaceCoverage(img, table.Box, c.Surface, 0)
	if !ok || coverage != 1 {
		t.Errorf("Expected coverage 1 on the visible part, got %f (ok=%v)", coverage, ok)
	}
	if c.Used(table, Frame{Image: img}) {
		t.Error("bare visible part should classify FREE")
	}
}

func TestAppearanceClassifier_Blur(t *testing.T) {
	th := DefaultThresholds()
	th.BlurRadius = 1
	c := NewAppearanceClassifier(th)
	img := createInMemoryImage(40, 40, white)

	table := types.FurnitureItem{ID: "T3", Box: types.Rect{X1: 0, Y1: 0, X2: 40, Y2: 40}}
	if c.Used(table, Frame{Image: img}) {
		t.Error("blurred bare table should still classify FREE")
	}
}

func TestHSVRange_Contains(t *testing.T) {
	wrap := HSVRange{HueMin: 330, HueMax: 30, SatMin: 0.5, SatMax: 1, ValMin: 0.5, ValMax: 1}
	tests := []struct {
		name    string
		h, s, v float64
		want    bool
	}{
		{"red at 0", 0, 1, 1, true},
		{"red at 350", 350, 1, 1, true},
		{"green", 120, 1, 1, false},
		{"too dull", 10, 0.2, 1, false},
		{"too dark", 10, 1, 0.1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrap.Contains(tt.h, tt.s, tt.v); got != tt.want {
				t.Errorf("Contains(%f,%f,%f): got %v, want %v", tt.h, tt.s, tt.v, got, tt.want)
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}

	bad := DefaultThresholds()
	bad.IoU = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for iou > 1")
	}

	bad = DefaultThresholds()
	bad.Surface.SatMin = 0.9
	bad.Surface.SatMax = 0.1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted saturation bounds")
	}
}
