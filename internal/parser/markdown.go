// Package parser extracts structure and text from uploaded documents.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	h1Regex      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// Document is a parsed Markdown document.
type Document struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title from frontmatter or the first h1
	Title string

	// Body after frontmatter
	Content string

	Sections []Section
}

// Section is a heading and the text below it up to the next heading.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string
	Path    string // e.g. "Pitch > Team"
	Content string
}

// ParseMarkdown parses a Markdown document. Malformed frontmatter is ignored.
func ParseMarkdown(content string) *Document {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	doc := &Document{Frontmatter: make(map[string]any)}

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end > 0 {
			if err := yaml.Unmarshal([]byte(content[4:4+end]), &doc.Frontmatter); err != nil || doc.Frontmatter == nil {
				doc.Frontmatter = make(map[string]any)
			}
			remaining = strings.TrimPrefix(content[4+end+4:], "\n")
		}
	}

	doc.Content = remaining
	doc.Title = extractTitle(doc.Frontmatter, remaining)
	doc.Sections = parseSections(remaining)
	return doc
}

func extractTitle(fm map[string]any, content string) string {
	for _, key := range []string{"title", "name"} {
		if v, ok := fm[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if match := h1Regex.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

func parseSections(content string) []Section {
	var (
		sections []Section
		path     []string
		levels   []int
		current  *Section
		body     strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		sections = append(sections, *current)
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		match := headingRegex.FindStringSubmatch(line)
		if match == nil {
			if current != nil {
				body.WriteString(line)
				body.WriteByte('\n')
			}
			continue
		}

		flush()
		level := len(match[1])
		heading := strings.TrimSpace(match[2])
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			path = path[:len(path)-1]
			levels = levels[:len(levels)-1]
		}
		path = append(path, heading)
		levels = append(levels, level)

		current = &Section{
			Level:   level,
			Heading: heading,
			Path:    strings.Join(path, " > "),
		}
	}
	flush()

	return sections
}

// FrontmatterString returns a string frontmatter value, or "".
func (d *Document) FrontmatterString(key string) string {
	if v, ok := d.Frontmatter[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Headings lists section headings in document order.
func (d *Document) Headings() []string {
	out := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		out = append(out, s.Heading)
	}
	return out
}
