package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TruncatedMarker is appended to excerpts that were cut short.
const TruncatedMarker = "\n[... truncated]"

var (
	emphasisRegex = regexp.MustCompile(`(\*\*|__|\*|~~|` + "`" + `)([^*~` + "`" + `\n]+?)(\*\*|__|\*|~~|` + "`" + `)`)
	linkRegex     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	listRegex     = regexp.MustCompile(`^(\s*)[-*+]\s+`)
	quoteRegex    = regexp.MustCompile(`^\s*>\s?`)
	ruleRegex     = regexp.MustCompile(`^\s*([-*_]\s*){3,}$`)
)

// Excerpt shortens content to at most limit bytes, cutting at a paragraph
// or sentence boundary when one is close enough, and marks the cut.
// A limit <= 0 returns content unchanged.
func Excerpt(content string, limit int) string {
	content = strings.TrimSpace(content)
	if limit <= 0 || len(content) <= limit {
		return content
	}

	cut := content[:limit]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}

	// Prefer a boundary in the last quarter of the window.
	floor := len(cut) * 3 / 4
	if i := strings.LastIndex(cut, "\n\n"); i >= floor {
		cut = cut[:i]
	} else if i := lastSentenceEnd(cut); i >= floor {
		cut = cut[:i+1]
	}

	return strings.TrimSpace(cut) + TruncatedMarker
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n"} {
		if i := strings.LastIndex(s, sep); i > best {
			best = i
		}
	}
	return best
}

// ShareBudget divides total evenly across n documents, never returning
// less than floor per document.
func ShareBudget(total, n, floor int) int {
	if n <= 0 {
		return total
	}
	share := total / n
	if share < floor {
		return floor
	}
	return share
}

// StripMarkdown converts Markdown into readable plain text. Headings lose
// their markers, emphasis and links keep only their text.
func StripMarkdown(md string) string {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	inFence := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		if ruleRegex.MatchString(line) {
			out = append(out, "")
			continue
		}
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[2])
		}
		line = quoteRegex.ReplaceAllString(line, "")
		line = listRegex.ReplaceAllString(line, "${1}- ")
		line = linkRegex.ReplaceAllString(line, "$1")
		line = emphasisRegex.ReplaceAllString(line, "$2")
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}
