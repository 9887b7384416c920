package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/raphaelgruber/diligence/internal/metrics"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/raphaelgruber/diligence/internal/parser"
)

// maxReadBytes caps how much of a single file is read as text.
const maxReadBytes = 8 << 20

// ErrNoReadableDocuments is returned when none of the staged files could be read.
var ErrNoReadableDocuments = errors.New("no readable documents")

var (
	markdownKinds = map[string]bool{"md": true, "markdown": true}
	textKinds     = map[string]bool{"txt": true, "csv": true, "tsv": true, "json": true, "yaml": true, "yml": true}
)

// KindOf returns the lowercase extension of path without the dot, or
// "other" when there is none.
func KindOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "other"
	}
	return ext
}

// Extract reads every file with a bounded worker pool. Files that cannot be
// read are logged and left out; it fails only when nothing could be read or
// ctx is done.
func Extract(ctx context.Context, paths []string, concurrency int, collector *metrics.Collector) (models.FileData, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu     sync.Mutex
		data   = make(models.FileData, len(paths))
		failed int
	)

	pathChan := make(chan string, len(paths))
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for path := range pathChan {
				if ctx.Err() != nil {
					return
				}

				start := time.Now()
				content, err := extractFile(path)
				if collector != nil {
					collector.RecordTiming(metrics.OpExtraction, time.Since(start))
				}

				mu.Lock()
				if err != nil {
					failed++
					slog.Warn("extraction failed", "worker", workerID, "file", filepath.Base(path), "error", err)
				} else {
					data[path] = content
				}
				mu.Unlock()
			}
		}(i)
	}

	for _, path := range paths {
		pathChan <- path
	}
	close(pathChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoReadableDocuments
	}

	slog.Info("extraction complete", "files", len(data), "failed", failed)
	return data, nil
}

func extractFile(path string) (models.ExtractedContent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.ExtractedContent{}, fmt.Errorf("stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.ExtractedContent{}, fmt.Errorf("not a regular file: %s", path)
	}

	kind := KindOf(path)
	out := models.ExtractedContent{
		Title: filepath.Base(path),
		Size:  info.Size(),
		Kind:  kind,
	}

	if kind == "pdf" {
		text, err := extractPDF(path)
		if err != nil {
			slog.Warn("pdf text extraction failed, keeping metadata only", "file", filepath.Base(path), "error", err)
			return out, nil
		}
		out.Content = strings.TrimSpace(strings.ToValidUTF8(text, "\uFFFD"))
		return out, nil
	}

	isText := markdownKinds[kind] || textKinds[kind]
	if !isText {
		isText, err = sniffText(path)
		if err != nil {
			return models.ExtractedContent{}, err
		}
	}
	if !isText {
		return out, nil
	}

	raw, err := readLimited(path)
	if err != nil {
		return models.ExtractedContent{}, err
	}
	text := strings.ToValidUTF8(string(raw), "\uFFFD")

	if markdownKinds[kind] {
		doc := parser.ParseMarkdown(text)
		if doc.Title != "" {
			out.Title = doc.Title
		}
		out.Content = strings.TrimSpace(doc.Content)
		return out, nil
	}

	out.Content = strings.TrimSpace(text)
	return out, nil
}

// extractPDF returns the plain text of every page. The parser panics on
// some malformed files; that is reported as an error.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, maxReadBytes))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxReadBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return raw, nil
}

// sniffText reports whether the file's leading bytes look like plain text.
func sniffText(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return strings.HasPrefix(http.DetectContentType(head[:n]), "text/plain"), nil
}
