// Package notetext derives note metadata from raw content and renders notes
// as Markdown files with YAML frontmatter for export.
package notetext

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phedlund/cloudnotes/internal/models"
)

// maxTitleLen bounds titles derived from content.
const maxTitleLen = 100

// Result holds metadata extracted from note content.
type Result struct {
	Title    string
	Category string // frontmatter override, "" when absent
	Favorite *bool  // nil when the frontmatter does not specify
	Body     string // content without frontmatter
}

type frontmatter struct {
	Title    string `yaml:"title,omitempty"`
	Category string `yaml:"category,omitempty"`
	Favorite *bool  `yaml:"favorite,omitempty"`
	Modified int64  `yaml:"modified,omitempty"`
}

// Parse extracts frontmatter and a display title from raw note content.
// Notes have no separate title field on the wire; the title is derived from
// the content the same way the server does it.
func Parse(content string) *Result {
	fm, body := splitFrontmatter(content)

	res := &Result{Body: body}
	if fm != nil {
		res.Title = fm.Title
		res.Category = fm.Category
		res.Favorite = fm.Favorite
	}
	if res.Title == "" {
		res.Title = deriveTitle(body)
	}
	return res
}

// Title returns the display title for raw note content.
func Title(content string) string {
	return Parse(content).Title
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the note body. Content without frontmatter is returned whole.
func splitFrontmatter(content string) (*frontmatter, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(content, "\n\r")

	if !strings.HasPrefix(trimmed, delim) {
		return nil, content
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		// No closing delimiter; treat everything as body.
		return nil, content
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(afterDelim, "\n\r")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		// Invalid YAML; fall back to the full content as body.
		return nil, content
	}
	return &fm, body
}

// deriveTitle returns the first H1 heading, otherwise the first non-empty
// line stripped of leading Markdown heading markers, truncated to
// maxTitleLen runes.
func deriveTitle(body string) string {
	var fallback string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			return truncate(strings.TrimSpace(trimmed[2:]))
		}
		if fallback == "" {
			fallback = truncate(strings.TrimLeft(trimmed, "# "))
		}
	}
	return fallback
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen])
}

// Render serializes a note as Markdown with YAML frontmatter, the format
// written by the export mirror. Parse(Render(n)) recovers the metadata.
func Render(n models.Note) (string, error) {
	fm := frontmatter{
		Title:    n.Title,
		Category: n.Category,
		Modified: n.Modified,
	}
	if n.Favorite {
		fav := true
		fm.Favorite = &fav
	}
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("notetext: render frontmatter: %w", err)
	}
	return "---\n" + string(header) + "---\n\n" + n.Content + "\n", nil
}
