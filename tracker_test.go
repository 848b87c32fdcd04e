package occupancytracker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/occupancy-tracker/internal/config"
	"github.com/menta2k/occupancy-tracker/pkg/dataset"
	"github.com/menta2k/occupancy-tracker/pkg/detection"
	"github.com/menta2k/occupancy-tracker/pkg/processing"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

const testFurniture = `{
  "items": [
    {"id": "T1", "category": "table", "box": [0, 0, 40, 40]},
    {"id": "T2", "category": "table", "box": [60, 0, 100, 40]},
    {"id": "B1", "category": "beanbag", "box": [10, 50, 40, 80]}
  ]
}`

// createTestImage creates a frame whose left half is a bare white table and
// right half is cluttered black
func createTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{250, 250, 250, 255}
			if x >= 50 {
				c = color.RGBA{20, 20, 20, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		InputDir:     filepath.Join(root, "images"),
		ProcessedDir: filepath.Join(root, "processed"),
		OutputDir:    filepath.Join(root, "outputs"),
		Dataset:      filepath.Join(root, "usage_stats.csv"),
		Furniture:    filepath.Join(root, "furniture.json"),
		SQLite:       filepath.Join(root, "usage.db"),
	}
	cfg.Output.Format = "png"
	if err := os.WriteFile(cfg.Paths.Furniture, []byte(testFurniture), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func seatedPerson() detection.Detector {
	return detection.Func(func(ctx context.Context, in detection.Input) ([]types.Detection, error) {
		return []types.Detection{
			{Category: types.CategoryPerson, Box: types.Rect{X1: 12, Y1: 45, X2: 38, Y2: 85}, Confidence: 0.8},
		}, nil
	})
}

func TestRunOnce(t *testing.T) {
	cfg := testConfig(t)
	tracker, err := NewWithDetector(cfg, seatedPerson())
	if err != nil {
		t.Fatalf("NewWithDetector failed: %v", err)
	}
	defer tracker.Close()

	if err := os.MkdirAll(cfg.Paths.InputDir, 0755); err != nil {
		t.Fatal(err)
	}
	p := processing.NewProcessor()
	for _, name := range []string{"IMG_20250911_164346.png", "IMG_20250911_090000.png"} {
		if err := p.SaveImage(createTestImage(), filepath.Join(cfg.Paths.InputDir, name), "png", 90, false); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := tracker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rows, err := dataset.ReadAll(cfg.Paths.Dataset)
	if err != nil || len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d (%v)", len(rows), err)
	}
	if rows[0].Filename != "IMG_20250911_090000.png" {
		t.Errorf("Expected filename order, first row is %s", rows[0].Filename)
	}
	r := rows[1]
	if r.PeopleCount != 1 || r.TableUsed != 1 || r.TableTotal != 2 || r.BeanbagUsed != 1 || r.BeanbagTotal != 1 {
		t.Errorf("unexpected counts %+v", r)
	}

	pending, _ := os.ReadDir(cfg.Paths.InputDir)
	if len(pending) != 0 {
		t.Errorf("Expected input directory drained, %d left", len(pending))
	}
	for _, dir := range []string{cfg.Paths.ProcessedDir, cfg.Paths.OutputDir} {
		entries, _ := os.ReadDir(dir)
		if len(entries) != 2 {
			t.Errorf("Expected 2 files in %s, got %d", dir, len(entries))
		}
	}
}

func TestRunOnce_EmptyDirectoryIsNoop(t *testing.T) {
	cfg := testConfig(t)
	tracker, err := NewWithDetector(cfg, seatedPerson())
	if err != nil {
		t.Fatalf("NewWithDetector failed: %v", err)
	}
	defer tracker.Close()

	for i := 0; i < 2; i++ {
		summary, err := tracker.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if summary.Processed != 0 || summary.Failed != 0 {
			t.Errorf("Expected no work, got %+v", summary)
		}
	}

	if _, err := os.Stat(cfg.Paths.Dataset); !os.IsNotExist(err) {
		t.Error("no dataset rows should be written")
	}
	entries, _ := os.ReadDir(cfg.Paths.ProcessedDir)
	if len(entries) != 0 {
		t.Errorf("Expected no moved files, got %d", len(entries))
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.Furniture = filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewWithDetector(cfg, seatedPerson()); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for missing furniture, got %v", err)
	}

	for _, dir := range []string{"input", "processed"} {
		cfg = testConfig(t)
		if dir == "input" {
			cfg.Paths.OutputDir = cfg.Paths.InputDir
		} else {
			cfg.Paths.OutputDir = cfg.Paths.ProcessedDir
		}
		if _, err := NewWithDetector(cfg, seatedPerson()); !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration for output dir equal to %s dir, got %v", dir, err)
		}
	}

	cfg = testConfig(t)
	cfg.Detectors = []config.DetectorConfig{{Name: "bad", Type: "ollama", URL: "not a url", Model: "m"}}
	if _, err := New(cfg); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for bad detector URL, got %v", err)
	}

	cfg = testConfig(t)
	cfg.Detectors = nil
	if _, err := New(cfg); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration without detectors, got %v", err)
	}
}

func TestBuildDetector(t *testing.T) {
	det, err := BuildDetector([]config.DetectorConfig{
		{Name: "people", Type: "ollama", URL: "http://localhost:11434", Model: "qwen2.5vl:7b"},
		{Name: "tables", Type: "llamacpp", URL: "http://localhost:8080", Model: "minicpm-v"},
		{Name: "beanbags", Type: "inference", URL: "http://localhost:8000/predict", ClassNames: []string{"beanbag"}},
	})
	if err != nil {
		t.Fatalf("BuildDetector failed: %v", err)
	}
	if multi, ok := det.(detection.Multi); !ok || len(multi) != 3 {
		t.Errorf("Expected 3 merged detectors, got %T", det)
	}

	if _, err := BuildDetector([]config.DetectorConfig{{Name: "x", Type: "magic"}}); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for unknown type, got %v", err)
	}
}

func TestCheckDetectors(t *testing.T) {
	cfg := testConfig(t)
	tracker, err := NewWithDetector(cfg, seatedPerson())
	if err != nil {
		t.Fatalf("NewWithDetector failed: %v", err)
	}
	defer tracker.Close()

	if err := tracker.CheckDetectors(context.Background()); err != nil {
		t.Errorf("in-process detector should count as healthy, got %v", err)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
