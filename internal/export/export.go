// Package export writes finished reports to disk as Markdown or plain text.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/diligence/internal/parser"
	"gopkg.in/yaml.v3"
)

// Format is a report file format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts "md", "markdown", "txt" or "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unsupported export format: %q (use md or txt)", s)
}

// Metadata describes the job a report came from.
type Metadata struct {
	Startup     string    `yaml:"startup"`
	Kind        string    `yaml:"analysis_type"`
	JobID       string    `yaml:"job_id,omitempty"`
	Agents      []string  `yaml:"agents,omitempty"`
	GeneratedAt time.Time `yaml:"generated_at"`
}

// FileName returns "<Startup_Name>_investment_analysis.<ext>".
func FileName(startup string, f Format) string {
	name := strings.TrimSpace(startup)
	if name == "" {
		name = "startup"
	}
	name = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
	return fmt.Sprintf("%s_investment_analysis.%s", name, f)
}

// Render produces the file content. Markdown gets YAML frontmatter; plain
// text gets a short header and the report with Markdown markers removed.
func Render(report string, meta Metadata, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		fm, err := yaml.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("marshal frontmatter: %w", err)
		}
		var sb strings.Builder
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
		sb.WriteString(strings.TrimSpace(report))
		sb.WriteString("\n")
		return []byte(sb.String()), nil

	case FormatText:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Investment Analysis: %s\n", meta.Startup)
		fmt.Fprintf(&sb, "Analysis type: %s\n", meta.Kind)
		if !meta.GeneratedAt.IsZero() {
			fmt.Fprintf(&sb, "Generated: %s\n", meta.GeneratedAt.Format(time.RFC3339))
		}
		sb.WriteString("\n")
		sb.WriteString(parser.StripMarkdown(report))
		return []byte(sb.String()), nil
	}
	return nil, fmt.Errorf("unsupported export format: %q", f)
}

// Write renders the report and stores it. out may be empty (current
// directory), an existing directory, or a file path. It returns the path
// written.
func Write(out, report string, meta Metadata, f Format) (string, error) {
	path, err := resolvePath(out, meta.Startup, f)
	if err != nil {
		return "", err
	}

	data, err := Render(report, meta, f)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func resolvePath(out, startup string, f Format) (string, error) {
	if out == "" {
		return FileName(startup, f), nil
	}
	if strings.HasSuffix(out, string(os.PathSeparator)) {
		return filepath.Join(out, FileName(startup, f)), nil
	}

	info, err := os.Stat(out)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(out, FileName(startup, f)), nil
	case err == nil || errors.Is(err, os.ErrNotExist):
		return out, nil
	default:
		return "", fmt.Errorf("check output path: %w", err)
	}
}
