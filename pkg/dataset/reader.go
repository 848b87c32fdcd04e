package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// HourlyStat is the mean usage for one hour of the day
type HourlyStat struct {
	Hour        int     `json:"hour"`
	Samples     int     `json:"samples"`
	PeopleCount float64 `json:"people_count"`
	TableUsed   float64 `json:"table_used"`
	BeanbagUsed float64 `json:"beanbag_used"`
}

// ReadAll parses every row of the dataset by column name. Columns missing
// from older files read as 0. Rows with an unparseable timestamp are
// skipped. A missing file yields no rows.
func ReadAll(path string) ([]types.FrameResult, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.TrimSpace(col)] = i
	}
	if _, ok := colMap["timestamp"]; !ok {
		return nil, fmt.Errorf("dataset header has no timestamp column")
	}

	var rows []types.FrameResult
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Printf("Warning: skipping dataset line %d: %v", line, err)
			continue
		}
		r, err := parseRow(row, colMap)
		if err != nil {
			log.Printf("Warning: skipping dataset line %d: %v", line, err)
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Latest returns the last appended row
func Latest(path string) (types.FrameResult, bool, error) {
	rows, err := ReadAll(path)
	if err != nil || len(rows) == 0 {
		return types.FrameResult{}, false, err
	}
	return rows[len(rows)-1], true, nil
}

// HourlyAverage groups rows by hour of day and averages the usage counts.
// Hours without samples are omitted.
func HourlyAverage(rows []types.FrameResult) []HourlyStat {
	byHour := make(map[int]*HourlyStat)
	for _, r := range rows {
		h := r.Timestamp.Hour()
		s, ok := byHour[h]
		if !ok {
			s = &HourlyStat{Hour: h}
			byHour[h] = s
		}
		s.Samples++
		s.PeopleCount += float64(r.PeopleCount)
		s.TableUsed += float64(r.TableUsed)
		s.BeanbagUsed += float64(r.BeanbagUsed)
	}

	stats := make([]HourlyStat, 0, len(byHour))
	for _, s := range byHour {
		n := float64(s.Samples)
		s.PeopleCount /= n
		s.TableUsed /= n
		s.BeanbagUsed /= n
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Hour < stats[j].Hour })
	return stats
}

func parseRow(row []string, colMap map[string]int) (types.FrameResult, error) {
	get := func(col string) string {
		if i, ok := colMap[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	num := func(col string) (int, error) {
		v := get(col)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			// counts written as "3.0" by older tooling
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0, fmt.Errorf("invalid %s %q", col, v)
			}
			n = int(f)
		}
		return n, nil
	}

	ts, err := time.ParseInLocation(TimestampLayout, get("timestamp"), time.Local)
	if err != nil {
		return types.FrameResult{}, fmt.Errorf("invalid timestamp %q", get("timestamp"))
	}

	r := types.FrameResult{Timestamp: ts, Filename: get("filename")}
	fields := []struct {
		col string
		dst *int
	}{
		{"people_count", &r.PeopleCount},
		{"table_used", &r.TableUsed},
		{"table_total", &r.TableTotal},
		{"beanbag_used", &r.BeanbagUsed},
		{"beanbag_total", &r.BeanbagTotal},
	}
	for _, fld := range fields {
		if *fld.dst, err = num(fld.col); err != nil {
			return types.FrameResult{}, err
		}
	}
	return r, nil
}
