// Package export mirrors the note cache to a directory of markdown
// files, one file per note, grouped into per-category subdirectories.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/checksum"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notetext"
	"github.com/phedlund/cloudnotes/internal/storage"
	"github.com/phedlund/cloudnotes/internal/tree"
)

const maxSlugLen = 60

// Mirror writes the cache to a storage provider and prunes files whose
// notes no longer exist.
type Mirror struct {
	store    cache.Store
	provider storage.Provider
	logger   *slog.Logger
}

func New(store cache.Store, provider storage.Provider, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{store: store, provider: provider, logger: logger}
}

// Run performs one full mirror pass. Unchanged files are left alone so
// repeated passes over a quiet cache touch nothing.
func (m *Mirror) Run() error {
	notes, err := m.store.Active()
	if err != nil {
		return fmt.Errorf("export: load notes: %w", err)
	}

	existing, err := m.provider.List("")
	if err != nil {
		return fmt.Errorf("export: list mirror: %w", err)
	}
	onDisk := make(map[string]string, len(existing))
	for _, f := range existing {
		onDisk[f.Path] = f.Checksum
	}

	written := 0
	keep := make(map[string]bool, len(notes))
	for _, n := range notes {
		path := Path(n)
		keep[path] = true
		content, err := notetext.Render(n)
		if err != nil {
			return fmt.Errorf("export: render note %d: %w", n.ID, err)
		}
		if onDisk[path] == checksum.SumString(content) {
			continue
		}
		if err := m.provider.Write(path, []byte(content)); err != nil {
			return fmt.Errorf("export: write %s: %w", path, err)
		}
		written++
	}

	pruned := 0
	for _, f := range existing {
		if keep[f.Path] {
			continue
		}
		if err := m.provider.Delete(f.Path); err != nil {
			return fmt.Errorf("export: prune %s: %w", f.Path, err)
		}
		pruned++
	}

	m.logger.Info("mirror pass complete",
		"notes", len(notes), "written", written, "pruned", pruned)
	return nil
}

// Path returns the mirror-relative file path for a note.
func Path(n models.Note) string {
	dir := n.Category
	if dir == "" {
		dir = tree.Uncategorized
	}
	return fmt.Sprintf("%s/%s-%d.md", Slug(dir), Slug(n.Title), n.ID)
}

// Slug lowercases s and collapses anything that is not a letter or
// digit into single hyphens.
func Slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "untitled"
	}
	if len(out) > maxSlugLen {
		out = strings.Trim(out[:maxSlugLen], "-")
	}
	return out
}
