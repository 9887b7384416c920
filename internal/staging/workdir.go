package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	workDirPrefix   = "extracted_"
	workDirAttempts = 3
)

// WorkDirName builds a directory name from a microsecond timestamp and an
// 8 hex character random suffix, e.g. extracted_20250102_150405_000123_1a2b3c4d.
func WorkDirName(now time.Time) string {
	ts := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	return workDirPrefix + ts + "_" + uuid.New().String()[:8]
}

// NewWorkDirectory creates a uniquely named directory under base.
// The timestamp alone may collide under rapid submissions; the random
// suffix keeps names distinct, and an existing name is retried.
func NewWorkDirectory(base string) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create scratch base: %w", err)
	}

	var lastErr error
	for range workDirAttempts {
		dir := filepath.Join(base, WorkDirName(time.Now()))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create work directory: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("create work directory: %w", lastErr)
}
