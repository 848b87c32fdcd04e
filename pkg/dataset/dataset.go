// Package dataset persists FrameResults to the append-only usage dataset.
//
// The CSV file is the system of record that dashboards read. Other sinks
// (SQLite, Kafka) mirror it on a best-effort basis.
package dataset

import (
	"fmt"
	"log"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// TimestampLayout is the timestamp column format
const TimestampLayout = "2006-01-02 15:04:05"

// Columns is the fixed column order of the dataset
var Columns = []string{
	"timestamp",
	"people_count",
	"table_used",
	"table_total",
	"beanbag_used",
	"beanbag_total",
	"filename",
}

// Sink receives every recorded frame
type Sink interface {
	Append(r types.FrameResult) error
}

// Tee appends to Primary and then to every mirror. Only a Primary failure
// is returned; mirror failures are logged.
type Tee struct {
	Primary Sink
	Mirrors []Sink
}

// Append implements Sink
func (t *Tee) Append(r types.FrameResult) error {
	if err := t.Primary.Append(r); err != nil {
		return err
	}
	for _, m := range t.Mirrors {
		if err := m.Append(r); err != nil {
			log.Printf("Warning: mirror append failed for %s: %v", r.Filename, err)
		}
	}
	return nil
}

// record renders r in column order
func record(r types.FrameResult) []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		fmt.Sprint(r.PeopleCount),
		fmt.Sprint(r.TableUsed),
		fmt.Sprint(r.TableTotal),
		fmt.Sprint(r.BeanbagUsed),
		fmt.Sprint(r.BeanbagTotal),
		r.Filename,
	}
}
