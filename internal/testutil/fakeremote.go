package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notetext"
	"github.com/phedlund/cloudnotes/internal/remote"
)

// FakeRemote is an in-memory implementation of remote.Client for tests. It
// behaves like the real server: assigns ids and etags, derives titles from
// content, and bumps modified timestamps on every write.
type FakeRemote struct {
	mu     sync.Mutex
	notes  map[int64]models.Note
	nextID int64
	rev    int64
	clock  int64

	// Fail makes every call return a network error.
	Fail bool
	// FailNotes makes calls touching these note ids return a network error.
	FailNotes map[int64]bool
	// OnFetch, when non-nil, runs at the start of every FetchAll.
	OnFetch func()
	// OnUpdate, when non-nil, runs at the start of every Update.
	OnUpdate func()

	calls map[string]int
}

// NewFakeRemote creates an empty fake server.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		notes:     map[int64]models.Note{},
		nextID:    1,
		clock:     1000,
		FailNotes: map[int64]bool{},
		calls:     map[string]int{},
	}
}

// Calls returns how many times the named method was invoked.
func (f *FakeRemote) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of remote calls of any kind.
func (f *FakeRemote) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Note returns the server's copy of a note and whether it exists.
func (f *FakeRemote) Note(id int64) (models.Note, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	return n, ok
}

// Seed places a note directly on the fake server, bypassing call counting.
func (f *FakeRemote) Seed(n models.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID >= f.nextID {
		f.nextID = n.ID + 1
	}
	if n.ETag == "" {
		n.ETag = f.newETag()
	}
	f.notes[n.ID] = n
}

// Edit rewrites a server note's content and modified timestamp, simulating
// an edit made by another client.
func (f *FakeRemote) Edit(id int64, content string, modified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notes[id]
	n.Content = content
	n.Title = notetext.Title(content)
	n.Modified = modified
	n.ETag = f.newETag()
	f.notes[id] = n
}

// SetModified rewrites a server note's modified timestamp, simulating a
// concurrent remote edit.
func (f *FakeRemote) SetModified(id, modified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notes[id]
	n.Modified = modified
	n.ETag = f.newETag()
	f.notes[id] = n
}

func (f *FakeRemote) newETag() string {
	f.rev++
	return fmt.Sprintf("etag-%d", f.rev)
}

func (f *FakeRemote) tick() int64 {
	f.clock++
	return f.clock
}

func (f *FakeRemote) failing(id int64) bool {
	return f.Fail || f.FailNotes[id]
}

// FetchAll implements remote.Client.
func (f *FakeRemote) FetchAll(ctx context.Context) ([]models.Note, error) {
	if f.OnFetch != nil {
		f.OnFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchAll"]++
	if f.Fail {
		return nil, fmt.Errorf("fake: fetch: %w", apperr.ErrNetwork)
	}
	out := make([]models.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n)
	}
	return out, nil
}

// Create implements remote.Client.
func (f *FakeRemote) Create(ctx context.Context, content, category string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Create"]++
	if f.Fail {
		return nil, fmt.Errorf("fake: create: %w", apperr.ErrNetwork)
	}
	n := models.Note{
		ID:       f.nextID,
		Title:    notetext.Title(content),
		Content:  content,
		Category: category,
		Modified: f.tick(),
		ETag:     f.newETag(),
	}
	f.nextID++
	f.notes[n.ID] = n
	return &n, nil
}

// Update implements remote.Client.
func (f *FakeRemote) Update(ctx context.Context, in models.Note) (*models.Note, error) {
	if f.OnUpdate != nil {
		f.OnUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Update"]++
	if f.failing(in.ID) {
		return nil, fmt.Errorf("fake: update: %w", apperr.ErrNetwork)
	}
	n, ok := f.notes[in.ID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	n.Content = in.Content
	n.Category = in.Category
	n.Favorite = in.Favorite
	n.Title = notetext.Title(in.Content)
	n.Modified = f.tick()
	n.ETag = f.newETag()
	f.notes[n.ID] = n
	return &n, nil
}

// Delete implements remote.Client.
func (f *FakeRemote) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Delete"]++
	if f.failing(id) {
		return fmt.Errorf("fake: delete: %w", apperr.ErrNetwork)
	}
	if _, ok := f.notes[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.notes, id)
	return nil
}

// SetFavorite implements remote.Client.
func (f *FakeRemote) SetFavorite(ctx context.Context, id int64, favorite bool) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SetFavorite"]++
	if f.failing(id) {
		return nil, fmt.Errorf("fake: favorite: %w", apperr.ErrNetwork)
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	n.Favorite = favorite
	n.ETag = f.newETag()
	f.notes[id] = n
	return &n, nil
}

// Verify *FakeRemote satisfies remote.Client at compile time.
var _ remote.Client = (*FakeRemote)(nil)
