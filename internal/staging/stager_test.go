package staging

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZip creates an in-memory archive. Names ending in "/" become directories.
func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		if content != "" {
			_, err = f.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestStager(t *testing.T) *Stager {
	t.Helper()
	root := t.TempDir()
	tmp := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tmp, 0o755))
	return NewStager(filepath.Join(root, "scratch"), tmp)
}

func TestStagePlainFile(t *testing.T) {
	s := newTestStager(t)

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "pitch_deck.pdf", Data: []byte("%PDF-1.4 deck")},
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	assert.Equal(t, "pitch_deck.pdf", filepath.Base(paths[0]))
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 deck", string(data))
}

func TestStagePlainFileStripsDirectories(t *testing.T) {
	s := newTestStager(t)

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "../../etc/notes.txt", Data: []byte("hi")},
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "notes.txt", filepath.Base(paths[0]))
	assert.True(t, isWithinDir(s.TempDir, paths[0]))
}

func TestStageArchiveFiltersNoise(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{
		"a.pdf":      "pdf bytes",
		".hidden":    "secret",
		"__MACOSX/b": "resource fork",
	})

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "bundle.ZIP", Data: archive},
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "a.pdf", filepath.Base(paths[0]))

	dirs := s.Created()
	require.Len(t, dirs, 1)
	assert.True(t, isWithinDir(dirs[0], paths[0]))
	assert.True(t, isWithinDir(s.BaseDir, dirs[0]))
}

func TestStageArchiveNestedAndMixed(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{
		"deck/":                "",
		"deck/pitch.pdf":       "p",
		"financials/model.csv": "a,b",
		"deck/.DS_Store":       "x",
		".git/config":          "x",
	})

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "notes.md", Data: []byte("# Notes")},
		{Name: "data.zip", Data: archive},
	})
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.ElementsMatch(t, []string{"notes.md", "pitch.pdf", "model.csv"}, names)
	assert.Equal(t, "notes.md", names[0], "uploads keep submission order")
}

func TestStageRemovesTempArchive(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{"a.txt": "a"})

	_, err := s.Stage(context.Background(), []models.UploadedBlob{{Name: "x.zip", Data: archive}})
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(s.TempDir, "upload-*.zip"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStageMalformedArchive(t *testing.T) {
	s := newTestStager(t)

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "good.txt", Data: []byte("fine")},
		{Name: "broken.zip", Data: []byte("definitely not a zip")},
	})
	require.Error(t, err)
	assert.Nil(t, paths)

	var stagingErr *StagingError
	require.True(t, errors.As(err, &stagingErr))
	assert.Equal(t, "broken.zip", stagingErr.Upload)
	assert.Contains(t, err.Error(), "broken.zip")

	assert.Empty(t, s.Created(), "failed staging must not keep directories")
	entries, err := os.ReadDir(s.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial uploads are removed")
}

func TestStageRejectsPathTraversal(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{"../escape.txt": "nope"})

	_, err := s.Stage(context.Background(), []models.UploadedBlob{{Name: "evil.zip", Data: archive}})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(s.BaseDir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStageCanceledContext(t *testing.T) {
	s := newTestStager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stage(ctx, []models.UploadedBlob{{Name: "a.txt", Data: []byte("a")}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStageTwoArchivesDistinctDirectories(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{"a.pdf": "a"})

	_, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "one.zip", Data: archive},
		{Name: "two.zip", Data: archive},
	})
	require.NoError(t, err)

	dirs := s.Created()
	require.Len(t, dirs, 2)
	assert.NotEqual(t, dirs[0], dirs[1])
}

func TestWorkDirNameSameInstant(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)
	pattern := regexp.MustCompile(`^extracted_20250314_150926_535897_[0-9a-f]{8}$`)

	seen := make(map[string]bool)
	for range 1000 {
		name := WorkDirName(now)
		require.Regexp(t, pattern, name)
		require.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func TestNewWorkDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "scratch")

	first, err := NewWorkDirectory(base)
	require.NoError(t, err)
	second, err := NewWorkDirectory(base)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.DirExists(t, first)
	assert.DirExists(t, second)
}

func TestCleanup(t *testing.T) {
	s := newTestStager(t)
	archive := buildZip(t, map[string]string{"a.pdf": "a"})

	paths, err := s.Stage(context.Background(), []models.UploadedBlob{
		{Name: "one.zip", Data: archive},
		{Name: "memo.txt", Data: []byte("m")},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	require.NoError(t, s.Cleanup())
	for _, p := range paths {
		assert.NoFileExists(t, p)
	}
	assert.Empty(t, s.Created())
}

func TestSummarize(t *testing.T) {
	counts := Summarize([]models.UploadedBlob{
		{Name: "a.PDF"}, {Name: "b.pdf"}, {Name: "c.zip"}, {Name: "README"},
	})
	assert.Equal(t, map[string]int{"pdf": 2, "zip": 1, "other": 1}, counts)
	assert.Equal(t, []string{"other", "pdf", "zip"}, SummaryKeys(counts))
}
