package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"IMG_20250911_164346.jpg", true},
		{"a.JPEG", true},
		{"b.png", true},
		{"c.webp", false},
		{"notes.txt", false},
		{"jpg", false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestListImageFiles_SortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"IMG_20250911_170000.jpg", "IMG_20250911_090000.png", "readme.txt", "IMG_20250911_120000.jpeg"} {
		touch(t, filepath.Join(dir, name), "x")
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	// modification times in reverse of name order
	base := time.Now()
	os.Chtimes(filepath.Join(dir, "IMG_20250911_090000.png"), base, base.Add(time.Hour))
	os.Chtimes(filepath.Join(dir, "IMG_20250911_170000.jpg"), base, base.Add(-time.Hour))

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	want := []string{"IMG_20250911_090000.png", "IMG_20250911_120000.jpeg", "IMG_20250911_170000.jpg"}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %v", len(want), files)
	}
	for i := range want {
		if filepath.Base(files[i]) != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], filepath.Base(files[i]))
		}
	}
}

func TestListImageFiles_Empty(t *testing.T) {
	files, err := ListImageFiles(t.TempDir())
	if err != nil || len(files) != 0 {
		t.Errorf("Expected no files, got %v, %v", files, err)
	}
	if _, err := ListImageFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/in/IMG_1.jpg", "/out", "", "", "webp")
	if got != filepath.Join("/out", "IMG_1.webp") {
		t.Errorf("unexpected output filename %s", got)
	}
	got = GenerateOutputFilename("/in/IMG_1.png", "/out", "", "", "")
	if got != filepath.Join("/out", "IMG_1.png") {
		t.Errorf("unexpected output filename %s", got)
	}
}

func TestMoveFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "IMG_20250911_164346.jpg")
	touch(t, src, "new")
	dstDir := filepath.Join(t.TempDir(), "processed")

	dst, conflict, err := MoveFile(src, dstDir, time.Now())
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if conflict {
		t.Error("no conflict expected")
	}
	if dst != filepath.Join(dstDir, "IMG_20250911_164346.jpg") {
		t.Errorf("unexpected destination %s", dst)
	}
	if FileExists(src) {
		t.Error("source should be gone")
	}
}

func TestMoveFile_Collision(t *testing.T) {
	inDir := t.TempDir()
	dstDir := t.TempDir()
	name := "IMG_20250911_164346.jpg"
	touch(t, filepath.Join(dstDir, name), "old")

	now := time.Date(2025, 9, 11, 17, 0, 0, 123456789, time.UTC)
	src := filepath.Join(inDir, name)

	for i, content := range []string{"second", "third"} {
		touch(t, src, content)
		dst, conflict, err := MoveFile(src, dstDir, now)
		if err != nil {
			t.Fatalf("MoveFile %d failed: %v", i, err)
		}
		if !conflict {
			t.Errorf("move %d: expected conflict", i)
		}
		if FileExists(src) {
			t.Errorf("move %d: source left in place", i)
		}
		data, _ := os.ReadFile(dst)
		if string(data) != content {
			t.Errorf("move %d: expected %q at %s, got %q", i, content, dst, data)
		}
	}

	old, _ := os.ReadFile(filepath.Join(dstDir, name))
	if string(old) != "old" {
		t.Error("existing processed file was overwritten")
	}
	if !FileExists(filepath.Join(dstDir, "IMG_20250911_164346_20250911T170000.123456789.jpg")) {
		t.Error("expected timestamp-suffixed name")
	}
	if !FileExists(filepath.Join(dstDir, "IMG_20250911_164346_20250911T170000.123456789-1.jpg")) {
		t.Error("expected counter-suffixed name on second collision")
	}
}

func TestMoveFile_MissingSource(t *testing.T) {
	if _, _, err := MoveFile(filepath.Join(t.TempDir(), "gone.jpg"), t.TempDir(), time.Now()); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestFreePath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 9, 11, 17, 0, 0, 0, time.UTC)
	path := filepath.Join(dir, "IMG_20250911_164346.png")

	got, err := FreePath(path, now)
	if err != nil || got != path {
		t.Fatalf("Expected untouched free path, got %s (%v)", got, err)
	}

	touch(t, path, "first overlay")
	got, err = FreePath(path, now)
	if err != nil {
		t.Fatalf("FreePath failed: %v", err)
	}
	if want := filepath.Join(dir, "IMG_20250911_164346_20250911T170000.000000000.png"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	touch(t, got, "second overlay")
	again, _ := FreePath(path, now)
	if again == got || again == path {
		t.Errorf("Expected a third name, got %s", again)
	}
}
