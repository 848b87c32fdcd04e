package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is the normalized class of a detection or furniture slot
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPerson
	CategoryTable
	CategoryBeanbag
)

// String returns the lowercase name used in config files and logs
func (c Category) String() string {
	switch c {
	case CategoryPerson:
		return "person"
	case CategoryTable:
		return "table"
	case CategoryBeanbag:
		return "beanbag"
	default:
		return "unknown"
	}
}

// ParseCategory maps a configured category name to a Category
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person":
		return CategoryPerson, nil
	case "table":
		return CategoryTable, nil
	case "beanbag", "bean_bag", "bean bag":
		return CategoryBeanbag, nil
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", s)
}

// Point is a position in pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box in pixel coordinates with X1 <= X2 and Y1 <= Y2
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the corners are ordered
func (r Rect) Valid() bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2
}

// Detection is one object found by a detector. Confidence is 1.0 when the
// source does not report one.
type Detection struct {
	Category   Category `json:"category"`
	Box        Rect     `json:"box"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
}

// FurnitureItem is a fixed, pre-annotated table or bean bag slot
type FurnitureItem struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Box      Rect     `json:"box"`
}

// FrameResult is one row of the usage dataset
type FrameResult struct {
	Timestamp    time.Time
	PeopleCount  int
	TableUsed    int
	TableTotal   int
	BeanbagUsed  int
	BeanbagTotal int
	Filename     string
}

// Valid reports an error when a used count is negative or exceeds its total
func (r FrameResult) Valid() error {
	if r.PeopleCount < 0 || r.TableUsed < 0 || r.BeanbagUsed < 0 {
		return fmt.Errorf("negative count in %s", r.Filename)
	}
	if r.TableUsed > r.TableTotal {
		return fmt.Errorf("table_used %d exceeds table_total %d", r.TableUsed, r.TableTotal)
	}
	if r.BeanbagUsed > r.BeanbagTotal {
		return fmt.Errorf("beanbag_used %d exceeds beanbag_total %d", r.BeanbagUsed, r.BeanbagTotal)
	}
	return nil
}

// Error taxonomy. Only ErrDetection and ErrConfiguration ever reach callers;
// the rest are recovered where they happen and only show up in logs.
var (
	ErrDetection       = errors.New("detection error")
	ErrTimestampParse  = errors.New("timestamp parse error")
	ErrWriteConflict   = errors.New("write conflict")
	ErrAnnotationWrite = errors.New("annotation write error")
	ErrConfiguration   = errors.New("configuration error")
)
