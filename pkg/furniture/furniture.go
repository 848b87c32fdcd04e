// Package furniture loads the fixed table and bean bag slots of a room.
package furniture

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Layout is the read-only set of furniture slots for one camera view
type Layout struct {
	Items []types.FurnitureItem
}

type fileItem struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Box      []float64 `json:"box"`
}

type fileLayout struct {
	Items []fileItem `json:"items"`
}

// Load reads a furniture annotation file of the form
//
//	{"items": [{"id": "T1", "category": "table", "box": [x1, y1, x2, y2]}]}
//
// Every failure wraps types.ErrConfiguration.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read furniture file: %v", types.ErrConfiguration, err)
	}
	return Parse(data)
}

// Parse validates and decodes a furniture annotation document
func Parse(data []byte) (*Layout, error) {
	var f fileLayout
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse furniture file: %v", types.ErrConfiguration, err)
	}

	layout := &Layout{Items: make([]types.FurnitureItem, 0, len(f.Items))}
	seen := make(map[string]bool, len(f.Items))
	for i, it := range f.Items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: item %d has no id", types.ErrConfiguration, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate furniture id %q", types.ErrConfiguration, id)
		}
		seen[id] = true

		cat, err := types.ParseCategory(it.Category)
		if err != nil || (cat != types.CategoryTable && cat != types.CategoryBeanbag) {
			return nil, fmt.Errorf("%w: item %s has unsupported category %q", types.ErrConfiguration, id, it.Category)
		}
		if len(it.Box) != 4 {
			return nil, fmt.Errorf("%w: item %s box needs 4 values, got %d", types.ErrConfiguration, id, len(it.Box))
		}
		box := types.Rect{X1: it.Box[0], Y1: it.Box[1], X2: it.Box[2], Y2: it.Box[3]}
		if !box.Valid() {
			return nil, fmt.Errorf("%w: item %s box corners out of order", types.ErrConfiguration, id)
		}

		layout.Items = append(layout.Items, types.FurnitureItem{ID: id, Category: cat, Box: box})
	}
	return layout, nil
}

// Save writes the layout back in the annotation file format
func (l *Layout) Save(path string) error {
	f := fileLayout{Items: make([]fileItem, 0, len(l.Items))}
	for _, it := range l.Items {
		f.Items = append(f.Items, fileItem{
			ID:       it.ID,
			Category: it.Category.String(),
			Box:      []float64{it.Box.X1, it.Box.Y1, it.Box.X2, it.Box.Y2},
		})
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal furniture: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Of returns the slots of one category, in file order
func (l *Layout) Of(cat types.Category) []types.FurnitureItem {
	out := make([]types.FurnitureItem, 0, len(l.Items))
	for _, it := range l.Items {
		if it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}

// Count returns how many slots of a category are configured
func (l *Layout) Count(cat types.Category) int {
	n := 0
	for _, it := range l.Items {
		if it.Category == cat {
			n++
		}
	}
	return n
}
