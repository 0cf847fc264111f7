package tree

import (
	"testing"

	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/testutil"
)

func seed(t *testing.T) *Tree {
	t.Helper()
	db := testutil.TestCache(t)
	notes := []models.Note{
		{ID: 1, Title: "Shopping", Content: "milk", Category: "Home", Modified: 100},
		{ID: 2, Title: "Standup", Content: "notes", Category: "Work", Favorite: true, Modified: 300},
		{ID: 3, Title: "Scratch", Content: "loose thought", Modified: 200},
		{ID: 4, Title: "Retro", Content: "went well", Category: "Work", Modified: 100},
	}
	for _, n := range notes {
		if err := db.Upsert(n); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return New(db)
}

func titles(t *testing.T, nodes []Node) []string {
	t.Helper()
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Title()
	}
	return out
}

func TestRoots_OrderAndLabels(t *testing.T) {
	tr := seed(t)
	roots, err := tr.Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}

	want := []string{"Favorites", "Categories", "All Notes", "Starred", "Home", "Work", Uncategorized}
	got := titles(t, roots)
	if len(got) != len(want) {
		t.Fatalf("roots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("root[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	var prev int64 = -2
	for _, n := range roots {
		if n.SortID() < prev {
			t.Errorf("sort ids out of order at %q: %d after %d", n.Title(), n.SortID(), prev)
		}
		prev = n.SortID()
	}
}

func TestRoots_NoUncategorizedGroupWithoutSuchNotes(t *testing.T) {
	db := testutil.TestCache(t)
	if err := db.Upsert(models.Note{ID: 1, Title: "a", Category: "Home", Modified: 1}); err != nil {
		t.Fatal(err)
	}
	roots, err := New(db).Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	for _, n := range roots {
		if n.Title() == Uncategorized {
			t.Error("Uncategorized group present with no uncategorized notes")
		}
	}
}

func TestCategoryChildren_ModifiedDescending(t *testing.T) {
	tr := seed(t)
	roots, _ := tr.Roots()

	var work Node
	for _, n := range roots {
		if n.Title() == "Work" {
			work = n
		}
	}
	if work == nil {
		t.Fatal("no Work group")
	}
	children, err := work.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	got := titles(t, children)
	if len(got) != 2 || got[0] != "Standup" || got[1] != "Retro" {
		t.Errorf("Work children = %v, want newest first", got)
	}
	count, err := work.ChildCount()
	if err != nil || count != 2 {
		t.Errorf("ChildCount = %d, %v", count, err)
	}
}

func TestStarredChildren(t *testing.T) {
	tr := seed(t)
	roots, _ := tr.Roots()
	children, err := roots[3].Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0].Title() != "Standup" {
		t.Errorf("starred = %v", titles(t, children))
	}
}

func TestAllChildren_LiveQuery(t *testing.T) {
	db := testutil.TestCache(t)
	tr := New(db)
	roots, err := tr.Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	all := roots[2]
	if count, _ := all.ChildCount(); count != 0 {
		t.Fatalf("empty store should have no children, got %d", count)
	}

	// A note added after Roots() must show up on the next access.
	if err := db.Upsert(models.Note{ID: 7, Title: "late arrival", Modified: 50}); err != nil {
		t.Fatal(err)
	}
	children, err := all.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0].Title() != "late arrival" {
		t.Errorf("children = %v", titles(t, children))
	}
}

func TestNodeShape(t *testing.T) {
	tr := seed(t)
	roots, _ := tr.Roots()

	for _, n := range roots {
		if n.IsLeaf() || !n.IsGroupItem() {
			t.Errorf("root %q should be a group", n.Title())
		}
		if n.Content() != "" {
			t.Errorf("group %q has content", n.Title())
		}
	}

	children, _ := roots[2].Children()
	leaf := children[0]
	if !leaf.IsLeaf() || leaf.IsGroupItem() {
		t.Errorf("note node misclassified: leaf=%v group=%v", leaf.IsLeaf(), leaf.IsGroupItem())
	}
	if leaf.SortID() <= roots[len(roots)-1].SortID() {
		t.Error("leaf sort ids must sort after every group")
	}
	nn, ok := leaf.(*NoteNode)
	if !ok {
		t.Fatalf("leaf type = %T", leaf)
	}
	if nn.Note().ID != leaf.SortID()-1000 {
		t.Errorf("leaf sort id %d not derived from note id %d", leaf.SortID(), nn.Note().ID)
	}
}
