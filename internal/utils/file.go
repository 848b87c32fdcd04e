package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// conflictSuffixLayout disambiguates a destination that already exists
const conflictSuffixLayout = "20060102T150405.000000000"

// ErrExists reports that a move destination is already taken
var ErrExists = errors.New("destination exists")

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a pending-image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png":
		return true
	}
	return false
}

// GenerateOutputFilename generates an output filename based on input and parameters
func GenerateOutputFilename(inputFile, outputDir, prefix, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "jpg"
		}
	}

	outputName := fmt.Sprintf("%s%s%s.%s", prefix, nameWithoutExt, suffix, format)
	return filepath.Join(outputDir, outputName)
}

// ListImageFiles lists the image files directly inside dir, sorted by
// filename. Subdirectories are not descended into.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// maxMoveAttempts bounds the conflict names tried for one file
const maxMoveAttempts = 100

// ConflictName returns name with a fine-grained timestamp suffix, and a
// counter when attempt > 0
func ConflictName(name string, now time.Time, attempt int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix := now.Format(conflictSuffixLayout)
	if attempt > 0 {
		suffix = fmt.Sprintf("%s-%d", suffix, attempt)
	}
	return fmt.Sprintf("%s_%s%s", stem, suffix, ext)
}

// FreePath returns path itself when nothing exists there, otherwise the
// first ConflictName candidate in the same directory that is free
func FreePath(path string, now time.Time) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path, nil
	}
	dir, name := filepath.Split(path)
	for attempt := 0; attempt < maxMoveAttempts; attempt++ {
		candidate := filepath.Join(dir, ConflictName(name, now, attempt))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// MoveFile moves src into dstDir without overwriting anything there. If the
// base name is taken, ConflictName candidates are tried. It returns the final
// path and whether a conflict was resolved.
func MoveFile(src, dstDir string, now time.Time) (string, bool, error) {
	if err := EnsureDir(dstDir); err != nil {
		return "", false, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	name := filepath.Base(src)
	for attempt := 0; attempt < maxMoveAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = ConflictName(name, now, attempt-1)
		}
		dst := filepath.Join(dstDir, candidate)

		err := place(src, dst)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		return dst, attempt > 0, nil
	}
	return "", false, fmt.Errorf("no free name for %s in %s", name, dstDir)
}

// place moves src to dst, failing with ErrExists if dst is taken. A hard
// link claims dst atomically; when linking is unsupported the file is
// copied instead.
func place(src, dst string) error {
	err := os.Link(src, dst)
	switch {
	case err == nil:
		return os.Remove(src)
	case os.IsExist(err):
		return ErrExists
	}

	if FileExists(dst) {
		return ErrExists
	}
	return copyAndRemove(src, dst)
}

func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return ErrExists
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
