package frame

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// filenameLayout is the capture time encoded as <prefix>_<YYYYMMDD>_<HHMMSS>
const filenameLayout = "20060102150405"

// ParseTimestamp reads the capture time from a filename such as
// IMG_20250911_164346.jpg. The second and third "_"-separated tokens of the
// stem are joined and parsed in local time.
func ParseTimestamp(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("%w: %q has no date and time tokens", types.ErrTimestampParse, base)
	}

	ts, err := time.ParseInLocation(filenameLayout, parts[1]+parts[2], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", types.ErrTimestampParse, base, err)
	}
	return ts, nil
}

// TimestampFor returns the filename timestamp, or now when it cannot be
// parsed. It never fails.
func TimestampFor(filename string, now time.Time) (time.Time, bool) {
	ts, err := ParseTimestamp(filename)
	if err != nil {
		return now.Truncate(time.Second), false
	}
	return ts, true
}
