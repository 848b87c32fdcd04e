package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

const sampleDataset = `timestamp,people_count,table_used,table_total,beanbag_used,beanbag_total,filename
2025-09-10 09:10:00,2,1,7,0,2,IMG_20250910_091000.jpg
2025-09-11 09:20:00,4,3,7,1,2,IMG_20250911_092000.jpg
2025-09-11 14:00:00,6,5,7,2,2,IMG_20250911_140000.jpg
`

func newTestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage_stats.csv")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	server := httptest.NewServer(NewRouter(&App{DatasetPath: path}))
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("invalid JSON from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, "")
	var body map[string]string
	if code := getJSON(t, server.URL+"/health", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", code, body)
	}
}

func TestLatest(t *testing.T) {
	server := newTestServer(t, sampleDataset)

	var status StatusResponse
	if code := getJSON(t, server.URL+"/status/latest", &status); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if status.Timestamp != "2025-09-11 14:00:00" || status.PeopleCount != 6 {
		t.Errorf("unexpected latest status %+v", status)
	}
	if status.TableFree != 2 || status.BeanbagFree != 0 {
		t.Errorf("unexpected free counts %+v", status)
	}
}

func TestLatest_NoData(t *testing.T) {
	server := newTestServer(t, "")
	if code := getJSON(t, server.URL+"/status/latest", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestHourly(t *testing.T) {
	server := newTestServer(t, sampleDataset)

	var all HourlyResponse
	if code := getJSON(t, server.URL+"/status/hourly", &all); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(all.Hours) != 2 || all.Hours[0].Hour != 9 || all.Hours[0].PeopleCount != 3 {
		t.Errorf("unexpected hourly averages %+v", all.Hours)
	}

	var day HourlyResponse
	getJSON(t, server.URL+"/status/hourly?date=2025-09-10", &day)
	if day.Date != "2025-09-10" || len(day.Hours) != 1 || day.Hours[0].PeopleCount != 2 {
		t.Errorf("unexpected single-day averages %+v", day)
	}

	if code := getJSON(t, server.URL+"/status/hourly?date=yesterday", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", code)
	}
}

type fakeHistory struct {
	rows  []types.FrameResult
	err   error
	since time.Time
}

func (f *fakeHistory) Since(t time.Time) ([]types.FrameResult, error) {
	f.since = t
	return f.rows, f.err
}

func TestHourly_FromHistory(t *testing.T) {
	history := &fakeHistory{rows: []types.FrameResult{
		{Timestamp: time.Date(2025, 9, 12, 10, 5, 0, 0, time.Local), PeopleCount: 3},
		{Timestamp: time.Date(2025, 9, 12, 10, 45, 0, 0, time.Local), PeopleCount: 5},
		{Timestamp: time.Date(2025, 9, 13, 8, 0, 0, 0, time.Local), PeopleCount: 9},
	}}
	// the CSV is deliberately absent: single-day queries must not need it
	app := &App{DatasetPath: filepath.Join(t.TempDir(), "missing.csv"), History: history}
	server := httptest.NewServer(NewRouter(app))
	defer server.Close()

	var day HourlyResponse
	if code := getJSON(t, server.URL+"/status/hourly?date=2025-09-12", &day); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if want := time.Date(2025, 9, 12, 0, 0, 0, 0, time.Local); !history.since.Equal(want) {
		t.Errorf("Expected history queried from %v, got %v", want, history.since)
	}
	if len(day.Hours) != 1 || day.Hours[0].Hour != 10 || day.Hours[0].PeopleCount != 4 {
		t.Errorf("unexpected single-day averages %+v", day.Hours)
	}

	history.err = errors.New("database is locked")
	if code := getJSON(t, server.URL+"/status/hourly?date=2025-09-12", nil); code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on history failure, got %d", code)
	}
}
