// Package staging turns uploaded blobs into on-disk files ready for analysis.
package staging

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/diligence/internal/models"
)

const archiveExt = ".zip"

// Stager writes uploads to disk. Archives are expanded into fresh work
// directories under BaseDir; other uploads go to private directories under
// TempDir (os.TempDir when empty).
//
// Nothing is removed automatically. Directories accumulate for the life of
// the process unless Cleanup is called.
type Stager struct {
	BaseDir string
	TempDir string

	mu      sync.Mutex
	created []string
}

// NewStager creates a stager rooted at baseDir.
func NewStager(baseDir, tempDir string) *Stager {
	return &Stager{BaseDir: baseDir, TempDir: tempDir}
}

// Stage writes every upload to disk and returns the flattened list of
// analyzable file paths. On any failure the directories created by this
// call are removed and a *StagingError naming the upload is returned.
func (s *Stager) Stage(ctx context.Context, uploads []models.UploadedBlob) ([]string, error) {
	var (
		paths   []string
		created []string
	)

	fail := func(name string, err error) ([]string, error) {
		for _, dir := range created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				slog.Warn("failed to remove partial staging directory", "dir", dir, "error", rmErr)
			}
		}
		return nil, &StagingError{Upload: name, Err: err}
	}

	for _, upload := range uploads {
		if err := ctx.Err(); err != nil {
			return fail(upload.Name, err)
		}

		if IsArchive(upload.Name) {
			dir, files, err := s.stageArchive(upload)
			if dir != "" {
				created = append(created, dir)
			}
			if err != nil {
				return fail(upload.Name, err)
			}
			slog.Info("archive expanded", "upload", upload.Name, "dir", dir, "files", len(files))
			paths = append(paths, files...)
			continue
		}

		dir, path, err := s.stageFile(upload)
		if dir != "" {
			created = append(created, dir)
		}
		if err != nil {
			return fail(upload.Name, err)
		}
		paths = append(paths, path)
	}

	s.mu.Lock()
	s.created = append(s.created, created...)
	s.mu.Unlock()

	return paths, nil
}

// Cleanup removes every directory this stager has created so far.
func (s *Stager) Cleanup() error {
	s.mu.Lock()
	dirs := s.created
	s.created = nil
	s.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

// Created returns the directories owned by this stager.
func (s *Stager) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

func (s *Stager) stageArchive(upload models.UploadedBlob) (string, []string, error) {
	tmp, err := os.CreateTemp(s.TempDir, "upload-*"+archiveExt)
	if err != nil {
		return "", nil, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temp archive", "path", tmpPath, "error", err)
		}
	}()

	_, writeErr := tmp.Write(upload.Data)
	closeErr := tmp.Close()
	if writeErr != nil {
		return "", nil, fmt.Errorf("write temp archive: %w", writeErr)
	}
	if closeErr != nil {
		return "", nil, fmt.Errorf("close temp archive: %w", closeErr)
	}

	dir, err := NewWorkDirectory(s.BaseDir)
	if err != nil {
		return "", nil, err
	}

	if err := extractArchive(tmpPath, dir); err != nil {
		return dir, nil, err
	}

	files, err := CollectFiles(dir)
	if err != nil {
		return dir, nil, err
	}
	return dir, files, nil
}

func (s *Stager) stageFile(upload models.UploadedBlob) (string, string, error) {
	name := filepath.Base(filepath.Clean(upload.Name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", "", fmt.Errorf("invalid file name")
	}

	dir, err := os.MkdirTemp(s.TempDir, "upload-")
	if err != nil {
		return "", "", fmt.Errorf("create upload directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, upload.Data, 0o644); err != nil {
		return dir, "", fmt.Errorf("write upload: %w", err)
	}
	return dir, path, nil
}

// IsArchive reports whether the upload name carries the archive extension.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), archiveExt)
}

// isNoise matches hidden files and macOS archive metadata.
func isNoise(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__MACOSX")
}

// CollectFiles walks dir and returns every regular file, skipping hidden
// and archive-metadata entries (and everything beneath such directories).
func CollectFiles(dir string) ([]string, error) {
	var files []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if isNoise(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	return files, nil
}

func extractArchive(zipPath, dest string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := extractEntry(file, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(file *zip.File, dest string) error {
	cleanName := filepath.Clean(filepath.FromSlash(file.Name))
	if cleanName == "." || cleanName == "" {
		return nil
	}
	target := filepath.Join(dest, cleanName)
	if !isWithinDir(dest, target) {
		return fmt.Errorf("archive contains invalid path: %s", file.Name)
	}

	mode := file.Mode()
	if mode.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if !mode.IsRegular() {
		// Symlinks and devices are never staged.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", file.Name, err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return fmt.Errorf("extract %s: %w", file.Name, copyErr)
	}
	return closeErr
}

func isWithinDir(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Summarize counts uploads by lowercase extension.
func Summarize(uploads []models.UploadedBlob) map[string]int {
	counts := make(map[string]int)
	for _, u := range uploads {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Name)), ".")
		if ext == "" {
			ext = "other"
		}
		counts[ext]++
	}
	return counts
}

// SummaryKeys returns the extensions from Summarize in sorted order.
func SummaryKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
