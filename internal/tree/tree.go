// Package tree builds the read-only presentation hierarchy over the note
// cache. Nodes query the store on every access so the view is always a
// function of current cache state, never a stale snapshot.
package tree

import (
	"fmt"

	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/models"
)

// Sort identifiers fix the ordering of root entries. Headers come first,
// then the flat views, then per-category groups, then note leaves.
const (
	sortHeader   int64 = -1
	sortAll      int64 = 0
	sortStarred  int64 = 1
	sortCategory int64 = 2

	// noteSortOffset keeps leaf sort ids clear of the group range.
	noteSortOffset int64 = 1000
)

// Uncategorized labels the group that collects notes without a category.
const Uncategorized = "Uncategorized"

// Node is the capability set the presentation layer sees. Group nodes
// have children and empty content; leaves carry a note.
type Node interface {
	Title() string
	Content() string
	Modified() int64
	SortID() int64
	IsLeaf() bool
	IsGroupItem() bool
	ChildCount() (int, error)
	Children() ([]Node, error)
}

// Tree resolves nodes against a live store.
type Tree struct {
	store cache.Store
}

func New(store cache.Store) *Tree {
	return &Tree{store: store}
}

// Roots returns the top-level entries: the two section headers, the All
// and Starred views, and one group per known category. Categories are
// alphabetical with the uncategorized group last.
func (t *Tree) Roots() ([]Node, error) {
	roots := []Node{
		headerNode{title: "Favorites"},
		headerNode{title: "Categories"},
		&allNode{tree: t},
		&starredNode{tree: t},
	}

	cats, err := t.store.Categories()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		roots = append(roots, &categoryNode{tree: t, category: c})
	}

	uncategorized, err := t.store.ByCategory("")
	if err != nil {
		return nil, fmt.Errorf("list uncategorized: %w", err)
	}
	if len(uncategorized) > 0 {
		roots = append(roots, &categoryNode{tree: t, category: ""})
	}
	return roots, nil
}

func (t *Tree) leaves(notes []models.Note) []Node {
	nodes := make([]Node, 0, len(notes))
	for _, n := range notes {
		nodes = append(nodes, &NoteNode{note: n})
	}
	return nodes
}

// headerNode is a static section label with no children.
type headerNode struct {
	title string
}

func (h headerNode) Title() string             { return h.title }
func (h headerNode) Content() string           { return "" }
func (h headerNode) Modified() int64           { return 0 }
func (h headerNode) SortID() int64             { return sortHeader }
func (h headerNode) IsLeaf() bool              { return false }
func (h headerNode) IsGroupItem() bool         { return true }
func (h headerNode) ChildCount() (int, error)  { return 0, nil }
func (h headerNode) Children() ([]Node, error) { return nil, nil }

// allNode lists every visible note regardless of category.
type allNode struct {
	tree *Tree
}

func (a *allNode) Title() string     { return "All Notes" }
func (a *allNode) Content() string   { return "" }
func (a *allNode) Modified() int64   { return 0 }
func (a *allNode) SortID() int64     { return sortAll }
func (a *allNode) IsLeaf() bool      { return false }
func (a *allNode) IsGroupItem() bool { return true }

func (a *allNode) Children() ([]Node, error) {
	notes, err := a.tree.store.Active()
	if err != nil {
		return nil, err
	}
	return a.tree.leaves(notes), nil
}

func (a *allNode) ChildCount() (int, error) { return childCount(a) }

// starredNode lists favorited notes.
type starredNode struct {
	tree *Tree
}

func (s *starredNode) Title() string     { return "Starred" }
func (s *starredNode) Content() string   { return "" }
func (s *starredNode) Modified() int64   { return 0 }
func (s *starredNode) SortID() int64     { return sortStarred }
func (s *starredNode) IsLeaf() bool      { return false }
func (s *starredNode) IsGroupItem() bool { return true }

func (s *starredNode) Children() ([]Node, error) {
	notes, err := s.tree.store.Starred()
	if err != nil {
		return nil, err
	}
	return s.tree.leaves(notes), nil
}

func (s *starredNode) ChildCount() (int, error) { return childCount(s) }

// categoryNode groups the notes of one category. An empty category is
// presented under the Uncategorized label.
type categoryNode struct {
	tree     *Tree
	category string
}

func (c *categoryNode) Title() string {
	if c.category == "" {
		return Uncategorized
	}
	return c.category
}

func (c *categoryNode) Content() string   { return "" }
func (c *categoryNode) Modified() int64   { return 0 }
func (c *categoryNode) SortID() int64     { return sortCategory }
func (c *categoryNode) IsLeaf() bool      { return false }
func (c *categoryNode) IsGroupItem() bool { return true }

func (c *categoryNode) Children() ([]Node, error) {
	notes, err := c.tree.store.ByCategory(c.category)
	if err != nil {
		return nil, err
	}
	return c.tree.leaves(notes), nil
}

func (c *categoryNode) ChildCount() (int, error) { return childCount(c) }

// NoteNode is a leaf wrapping a single note.
type NoteNode struct {
	note models.Note
}

func (n *NoteNode) Title() string             { return n.note.Title }
func (n *NoteNode) Content() string           { return n.note.Content }
func (n *NoteNode) Modified() int64           { return n.note.Modified }
func (n *NoteNode) SortID() int64             { return n.note.ID + noteSortOffset }
func (n *NoteNode) IsLeaf() bool              { return true }
func (n *NoteNode) IsGroupItem() bool         { return false }
func (n *NoteNode) ChildCount() (int, error)  { return 0, nil }
func (n *NoteNode) Children() ([]Node, error) { return nil, nil }

// Note returns the wrapped record.
func (n *NoteNode) Note() models.Note { return n.note }

func childCount(n Node) (int, error) {
	children, err := n.Children()
	if err != nil {
		return 0, err
	}
	return len(children), nil
}
