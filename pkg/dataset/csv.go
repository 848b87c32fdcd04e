package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// CSV is the append-only usage dataset file
type CSV struct {
	path string
	mu   sync.Mutex
}

// OpenCSV prepares the dataset at path. A file written before the bean bag
// columns existed is upgraded in place; the file is not created until the
// first Append.
func OpenCSV(path string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	d := &CSV{path: path}
	if err := d.upgrade(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the dataset file path
func (d *CSV) Path() string { return d.path }

// Append adds one row. The header is written only when the file is new or
// empty, and the row goes out in a single append-mode write.
func (d *CSV) Append(r types.FrameResult) error {
	if err := r.Valid(); err != nil {
		return fmt.Errorf("refusing to record invalid row: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat dataset: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		w.Write(Columns)
	}
	w.Write(record(r))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return f.Sync()
}

// upgrade rewrites an existing file whose header is missing known columns.
// Missing values become 0. The rewrite goes through a temp file and rename.
func (d *CSV) upgrade() error {
	f, err := os.Open(d.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dataset header: %w", err)
	}

	colMap, err := columnIndex(header)
	if err != nil {
		return err
	}
	if sameColumns(header) {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp dataset: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Write(Columns)
	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to read dataset row %d: %w", rows+2, err)
		}
		out := make([]string, len(Columns))
		for i, col := range Columns {
			out[i] = "0"
			if col == "filename" {
				out[i] = ""
			}
			if j, ok := colMap[col]; ok && j < len(row) {
				out[i] = row[j]
			}
		}
		w.Write(out)
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write upgraded dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	f.Close()

	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	log.Printf("Upgraded dataset %s to %d columns (%d rows)", d.path, len(Columns), rows)
	return nil
}

// columnIndex maps header names to positions and rejects unknown columns
func columnIndex(header []string) (map[string]int, error) {
	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}
	colMap := make(map[string]int, len(header))
	for i, col := range header {
		if !known[col] {
			return nil, fmt.Errorf("unexpected dataset column %q", col)
		}
		colMap[col] = i
	}
	if _, ok := colMap["timestamp"]; !ok {
		return nil, fmt.Errorf("dataset header has no timestamp column")
	}
	return colMap, nil
}

func sameColumns(header []string) bool {
	if len(header) != len(Columns) {
		return false
	}
	for i := range header {
		if header[i] != Columns[i] {
			return false
		}
	}
	return true
}
