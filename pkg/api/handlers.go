package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/menta2k/occupancy-tracker/pkg/dataset"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// History returns recorded rows from t onward. The SQLite mirror provides it.
type History interface {
	Since(t time.Time) ([]types.FrameResult, error)
}

// App answers status queries from the usage dataset. When History is set,
// single-day queries read from it instead of scanning the whole CSV.
type App struct {
	DatasetPath string
	History     History
}

// StatusResponse is the latest recorded frame
type StatusResponse struct {
	Timestamp    string `json:"timestamp"`
	PeopleCount  int    `json:"people_count"`
	TableUsed    int    `json:"table_used"`
	TableTotal   int    `json:"table_total"`
	TableFree    int    `json:"table_free"`
	BeanbagUsed  int    `json:"beanbag_used"`
	BeanbagTotal int    `json:"beanbag_total"`
	BeanbagFree  int    `json:"beanbag_free"`
	Filename     string `json:"filename"`
}

// HourlyResponse holds per-hour averages, optionally for a single day
type HourlyResponse struct {
	Date  string               `json:"date,omitempty"`
	Hours []dataset.HourlyStat `json:"hours"`
}

// HealthHandler reports that the server is up
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LatestHandler returns the most recent row, or 404 before the first one
func (app *App) LatestHandler(w http.ResponseWriter, r *http.Request) {
	row, ok, err := dataset.Latest(app.DatasetPath)
	if err != nil {
		log.Printf("Failed to read dataset: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no data recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, toStatus(row))
}

// HourlyHandler averages usage by hour of day. ?date=YYYY-MM-DD limits it
// to one day.
func (app *App) HourlyHandler(w http.ResponseWriter, r *http.Request) {
	resp := HourlyResponse{}
	var day time.Time
	if date := r.URL.Query().Get("date"); date != "" {
		var err error
		day, err = time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		resp.Date = date
	}

	var rows []types.FrameResult
	var err error
	if !day.IsZero() && app.History != nil {
		rows, err = app.History.Since(day)
	} else {
		rows, err = dataset.ReadAll(app.DatasetPath)
	}
	if err != nil {
		log.Printf("Failed to read dataset: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}
	if !day.IsZero() {
		rows = onDay(rows, day)
	}
	resp.Hours = dataset.HourlyAverage(rows)
	writeJSON(w, http.StatusOK, resp)
}

func onDay(rows []types.FrameResult, day time.Time) []types.FrameResult {
	end := day.AddDate(0, 0, 1)
	var out []types.FrameResult
	for _, r := range rows {
		if !r.Timestamp.Before(day) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

func toStatus(r types.FrameResult) StatusResponse {
	return StatusResponse{
		Timestamp:    r.Timestamp.Format(dataset.TimestampLayout),
		PeopleCount:  r.PeopleCount,
		TableUsed:    r.TableUsed,
		TableTotal:   r.TableTotal,
		TableFree:    r.TableTotal - r.TableUsed,
		BeanbagUsed:  r.BeanbagUsed,
		BeanbagTotal: r.BeanbagTotal,
		BeanbagFree:  r.BeanbagTotal - r.BeanbagUsed,
		Filename:     r.Filename,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
