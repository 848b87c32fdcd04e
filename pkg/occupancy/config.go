package occupancy

import "fmt"

// HSVRange selects "bare surface" pixels. Hue is in degrees [0,360],
// saturation and value in [0,1]. When HueMin > HueMax the hue range wraps
// through 0 (e.g. 330..30 for reds).
type HSVRange struct {
	HueMin float64 `json:"hue_min"`
	HueMax float64 `json:"hue_max"`
	SatMin float64 `json:"sat_min"`
	SatMax float64 `json:"sat_max"`
	ValMin float64 `json:"val_min"`
	ValMax float64 `json:"val_max"`
}

// Contains reports whether an HSV triple falls in the range
func (r HSVRange) Contains(h, s, v float64) bool {
	if s < r.SatMin || s > r.SatMax || v < r.ValMin || v > r.ValMax {
		return false
	}
	if r.HueMin <= r.HueMax {
		return h >= r.HueMin && h <= r.HueMax
	}
	return h >= r.HueMin || h <= r.HueMax
}

// Thresholds holds the tunable constants of both classifiers
type Thresholds struct {
	// IoU above which a person counts as sitting on a bean bag.
	IoU float64 `json:"iou"`

	// SurfaceCoverage is the minimum fraction of bare-surface pixels for a
	// table to count as free.
	SurfaceCoverage float64 `json:"surface_coverage"`

	// Surface is the color range of the bare table top.
	Surface HSVRange `json:"surface"`

	// BlurRadius smooths the table crop before classifying pixels; 0 disables it.
	BlurRadius float64 `json:"blur_radius"`
}

// DefaultThresholds matches the values the deployment was tuned with
func DefaultThresholds() Thresholds {
	return Thresholds{
		IoU:             0.2,
		SurfaceCoverage: 0.7,
		Surface: HSVRange{
			// off-white / light neutral laminate
			HueMin: 0,
			HueMax: 360,
			SatMin: 0,
			SatMax: 0.25,
			ValMin: 0.6,
			ValMax: 1.0,
		},
		BlurRadius: 0,
	}
}

// Validate checks every threshold is within its domain
func (t Thresholds) Validate() error {
	if t.IoU < 0 || t.IoU > 1 {
		return fmt.Errorf("iou threshold must be between 0 and 1")
	}
	if t.SurfaceCoverage < 0 || t.SurfaceCoverage > 1 {
		return fmt.Errorf("surface_coverage must be between 0 and 1")
	}
	s := t.Surface
	if s.HueMin < 0 || s.HueMin > 360 || s.HueMax < 0 || s.HueMax > 360 {
		return fmt.Errorf("surface hue bounds must be between 0 and 360")
	}
	if s.SatMin < 0 || s.SatMax > 1 || s.SatMin > s.SatMax {
		return fmt.Errorf("surface saturation bounds must satisfy 0 <= min <= max <= 1")
	}
	if s.ValMin < 0 || s.ValMax > 1 || s.ValMin > s.ValMax {
		return fmt.Errorf("surface value bounds must satisfy 0 <= min <= max <= 1")
	}
	if t.BlurRadius < 0 {
		return fmt.Errorf("blur_radius must not be negative")
	}
	return nil
}
