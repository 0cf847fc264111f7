// Package notesync implements the synchronization engine: it applies user
// mutations to the local cache, queues them while offline, and reconciles
// local state with the remote service.
package notesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notetext"
	"github.com/phedlund/cloudnotes/internal/remote"
)

// Change kinds reported through the OnChange callback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Manager owns the local cache and the offline queue and brings them into
// agreement with the remote service. All construction is explicit; there is
// no shared global instance.
//
// Local mutations are serialized by a single mutex. Sync passes are
// additionally serialized by an in-flight flag: a second Sync while one is
// running returns apperr.ErrSyncInProgress instead of queuing behind it.
type Manager struct {
	store      cache.Store
	client     remote.Client
	logger     *slog.Logger
	offline    func() bool
	onConflict func(models.Conflict)
	onChange   func(kind string, id int64)
	now        func() int64

	mu      sync.Mutex
	syncing atomic.Bool
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithOffline sets the offline-mode probe, checked before every remote call.
func WithOffline(f func() bool) Option {
	return func(m *Manager) { m.offline = f }
}

// WithOnConflict sets the callback invoked when a sync pass resolves a
// genuine conflict automatically. Called at most once per note per pass.
func WithOnConflict(f func(models.Conflict)) Option {
	return func(m *Manager) { m.onConflict = f }
}

// WithOnChange sets the callback invoked after a note is created, updated,
// or removed in the local cache.
func WithOnChange(f func(kind string, id int64)) Option {
	return func(m *Manager) { m.onChange = f }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() int64) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over the given cache and remote client.
func New(store cache.Store, client remote.Client, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		client:  client,
		logger:  slog.Default(),
		offline: func() bool { return false },
		now:     func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) notify(kind string, id int64) {
	if m.onChange != nil {
		m.onChange(kind, id)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("notesync: %s: %w: %v", op, apperr.ErrStorage, err)
}

// Add creates a note locally and, when online, attempts the remote creation
// as part of the call. The returned note reflects the final state: on a
// successful round-trip it carries the server-assigned id and a clear
// add_needed flag; on network failure it is the local-only note with
// add_needed still set, and no error is returned (the creation is deferred
// to the next sync, not lost).
func (m *Manager) Add(ctx context.Context, content, category string) (*models.Note, error) {
	m.mu.Lock()
	id, err := m.store.NextLocalID()
	if err != nil {
		m.mu.Unlock()
		return nil, storageErr("add", err)
	}
	n := models.Note{
		ID:        id,
		Title:     notetext.Title(content),
		Content:   content,
		Category:  category,
		Modified:  m.now(),
		AddNeeded: true,
	}
	if err := m.store.Upsert(n); err != nil {
		m.mu.Unlock()
		return nil, storageErr("add", err)
	}
	if err := m.store.Enqueue(cache.Op{NoteID: id, Kind: cache.OpCreate, Content: content, Category: category}); err != nil {
		m.mu.Unlock()
		return nil, storageErr("add", err)
	}
	m.mu.Unlock()
	m.notify(ChangeCreated, id)

	if !m.offline() {
		id = m.pushNote(ctx, id, nil)
	}

	final, err := m.store.Get(id)
	if err != nil {
		return nil, storageErr("add", err)
	}
	return final, nil
}

// Update replaces a note's content (and optionally its category), marks it
// dirty, and attempts an immediate push when online. Push failures are
// deferred to the next sync and not surfaced as errors.
func (m *Manager) Update(ctx context.Context, id int64, content, category string) (*models.Note, error) {
	m.mu.Lock()
	n, err := m.store.Get(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if n.DeleteNeeded {
		m.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	n.Content = content
	n.Category = category
	n.Title = notetext.Title(content)
	n.Modified = m.now()
	n.UpdateNeeded = true
	if err := m.store.Upsert(*n); err != nil {
		m.mu.Unlock()
		return nil, storageErr("update", err)
	}
	if err := m.store.Enqueue(cache.Op{NoteID: id, Kind: cache.OpUpdate, Content: content, Category: category}); err != nil {
		m.mu.Unlock()
		return nil, storageErr("update", err)
	}
	m.mu.Unlock()
	m.notify(ChangeUpdated, id)

	if !m.offline() {
		id = m.pushNote(ctx, id, nil)
	}

	final, err := m.store.Get(id)
	if err != nil {
		return nil, storageErr("update", err)
	}
	return final, nil
}

// ToggleFavorite flips the favorite flag and queues the change.
func (m *Manager) ToggleFavorite(ctx context.Context, id int64) (*models.Note, error) {
	m.mu.Lock()
	n, err := m.store.Get(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if n.DeleteNeeded {
		m.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	n.Favorite = !n.Favorite
	n.UpdateNeeded = true
	if err := m.store.Upsert(*n); err != nil {
		m.mu.Unlock()
		return nil, storageErr("favorite", err)
	}
	if err := m.store.Enqueue(cache.Op{NoteID: id, Kind: cache.OpFavorite, Favorite: n.Favorite}); err != nil {
		m.mu.Unlock()
		return nil, storageErr("favorite", err)
	}
	m.mu.Unlock()
	m.notify(ChangeUpdated, id)

	if !m.offline() {
		id = m.pushNote(ctx, id, nil)
	}

	final, err := m.store.Get(id)
	if err != nil {
		return nil, storageErr("favorite", err)
	}
	return final, nil
}

// Delete removes a note. A note that never reached the server (add_needed)
// is removed from the cache immediately with no remote call. Otherwise the
// note is marked delete_needed, which hides it from every view, and the remote
// delete is attempted now or deferred to the next sync; the cache record is
// only removed once the server confirms.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	n, err := m.store.Get(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if n.AddNeeded {
		if err := m.store.Drop(id); err != nil {
			m.mu.Unlock()
			return storageErr("delete", err)
		}
		if err := m.store.Remove(id); err != nil {
			m.mu.Unlock()
			return storageErr("delete", err)
		}
		m.mu.Unlock()
		m.notify(ChangeDeleted, id)
		return nil
	}

	if err := m.store.MarkDelete(id); err != nil {
		m.mu.Unlock()
		return storageErr("delete", err)
	}
	if err := m.store.Enqueue(cache.Op{NoteID: id, Kind: cache.OpDelete}); err != nil {
		m.mu.Unlock()
		return storageErr("delete", err)
	}
	m.mu.Unlock()
	m.notify(ChangeDeleted, id)

	if !m.offline() {
		m.pushNote(ctx, id, nil)
	}
	return nil
}

// Get returns a note from the local cache. A note pending deletion is
// reported as not found, like every other read surface; the raw record
// stays reachable through Pending until the server confirms.
func (m *Manager) Get(id int64) (*models.Note, error) {
	n, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if n.DeleteNeeded {
		return nil, apperr.ErrNotFound
	}
	return n, nil
}

// Syncing reports whether a reconciliation pass is currently running.
func (m *Manager) Syncing() bool {
	return m.syncing.Load()
}

// Sync performs one full reconciliation pass: fetch the remote note set,
// replay the offline queue (push phase), then merge remote state into the
// cache (pull phase). Transient network failures leave the queue intact and
// are reported as apperr.ErrNetwork; the next pass retries.
func (m *Manager) Sync(ctx context.Context) error {
	if !m.syncing.CompareAndSwap(false, true) {
		return apperr.ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	if m.offline() {
		m.logger.Debug("sync skipped: offline mode")
		return nil
	}

	remotes, err := m.client.FetchAll(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNetwork) {
			m.logger.Warn("sync deferred: server unreachable", slog.String("error", err.Error()))
			return fmt.Errorf("notesync: fetch: %w", apperr.ErrNetwork)
		}
		return fmt.Errorf("notesync: fetch: %w", err)
	}

	remoteByID := make(map[int64]models.Note, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}

	confirmed := m.pushAll(ctx, remoteByID)
	m.merge(remotes, remoteByID, confirmed)

	m.logger.Info("sync complete",
		slog.Int("remote_notes", len(remotes)),
		slog.Int("pushed", len(confirmed)))
	return nil
}

// pushAll drains the offline queue in FIFO order. Each item fails or
// succeeds independently; a failed item stays queued for the next pass and
// does not block the rest. It returns the set of note ids whose pushes were
// confirmed this pass.
func (m *Manager) pushAll(ctx context.Context, remoteByID map[int64]models.Note) map[int64]struct{} {
	confirmed := make(map[int64]struct{})
	attempted := make(map[int64]bool)

	for {
		ops, err := m.store.PendingOps()
		if err != nil {
			m.logger.Error("push: read queue", slog.String("error", err.Error()))
			return confirmed
		}
		var next *cache.Op
		for i := range ops {
			if !attempted[ops[i].Seq] {
				next = &ops[i]
				break
			}
		}
		if next == nil {
			return confirmed
		}
		attempted[next.Seq] = true

		id := m.pushOp(ctx, *next, remoteByID)
		if id != 0 {
			confirmed[id] = struct{}{}
		}
	}
}

// pushNote replays all queued operations for a single note, as the
// immediate-push path of Add/Update/Delete. It returns the note's current
// id, which changes when a create push assigns the server id.
func (m *Manager) pushNote(ctx context.Context, id int64, remoteByID map[int64]models.Note) int64 {
	for {
		ops, err := m.store.PendingOps()
		if err != nil {
			m.logger.Error("push: read queue", slog.String("error", err.Error()))
			return id
		}
		var next *cache.Op
		for i := range ops {
			if ops[i].NoteID == id {
				next = &ops[i]
				break
			}
		}
		if next == nil {
			return id
		}
		newID := m.pushOp(ctx, *next, remoteByID)
		if newID == 0 {
			// Failed; the op stays queued for the next sync.
			return id
		}
		id = newID
	}
}

// pushOp attempts one queued operation against the remote service. On
// success the op is acked and the cache updated with the server's response;
// the note's (possibly rekeyed) id is returned. On failure it returns 0 and
// leaves the op queued.
func (m *Manager) pushOp(ctx context.Context, op cache.Op, remoteByID map[int64]models.Note) int64 {
	switch op.Kind {
	case cache.OpCreate:
		return m.pushCreate(ctx, op)
	case cache.OpUpdate:
		return m.pushUpdate(ctx, op, remoteByID)
	case cache.OpFavorite:
		return m.pushFavorite(ctx, op)
	case cache.OpDelete:
		return m.pushDelete(ctx, op)
	default:
		m.logger.Error("push: unknown op kind", slog.String("kind", op.Kind))
		_ = m.store.Ack(op.Seq)
		return 0
	}
}

// beginPush marks a queue row in flight and re-reads it. Marking first means
// any edit enqueued from here on appends a fresh row instead of coalescing
// into the one whose payload is about to go on the wire; re-reading picks up
// an edit that coalesced in after the queue scan. Returns false when the row
// is gone, which happens when a delete raced in and discarded it.
func (m *Manager) beginPush(op cache.Op) (cache.Op, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.MarkInFlight(op.Seq, true); err != nil {
		m.logger.Error("push: mark in flight", slog.String("error", err.Error()))
		return cache.Op{}, false
	}
	ops, err := m.store.PendingOps()
	if err != nil {
		m.logger.Error("push: read queue", slog.String("error", err.Error()))
		return cache.Op{}, false
	}
	for _, cur := range ops {
		if cur.Seq == op.Seq {
			return cur, true
		}
	}
	return cache.Op{}, false
}

// endPush clears the in-flight marker of a row whose push did not complete,
// so later edits coalesce into it again.
func (m *Manager) endPush(seq int64) {
	if err := m.store.MarkInFlight(seq, false); err != nil {
		m.logger.Error("push: clear in flight", slog.String("error", err.Error()))
	}
}

func (m *Manager) pushCreate(ctx context.Context, op cache.Op) int64 {
	cur, ok := m.beginPush(op)
	if !ok {
		return 0
	}
	created, err := m.client.Create(ctx, cur.Content, cur.Category)
	if err != nil {
		m.endPush(op.Seq)
		m.logger.Warn("push: create deferred",
			slog.Int64("note_id", op.NoteID), slog.String("error", err.Error()))
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Rekey(op.NoteID, created.ID); err != nil {
		m.logger.Error("push: rekey", slog.String("error", err.Error()))
		return 0
	}
	if err := m.applyServer(created.ID, created, op.Seq); err != nil {
		m.logger.Error("push: apply create", slog.String("error", err.Error()))
		return 0
	}
	_ = m.store.Ack(op.Seq)
	return created.ID
}

func (m *Manager) pushUpdate(ctx context.Context, op cache.Op, remoteByID map[int64]models.Note) int64 {
	if _, ok := m.beginPush(op); !ok {
		return 0
	}
	m.mu.Lock()
	n, err := m.store.Get(op.NoteID)
	m.mu.Unlock()
	if err != nil {
		// The note vanished locally; nothing to push.
		_ = m.store.Ack(op.Seq)
		return 0
	}

	// A remote modification newer than the local edit means both sides
	// changed since the last sync. Policy: the local edit wins and the push
	// below overwrites the server, but the decision is surfaced.
	if r, ok := remoteByID[n.ID]; ok && r.Modified > n.Modified && m.onConflict != nil {
		m.onConflict(models.Conflict{
			NoteID:         n.ID,
			LocalModified:  n.Modified,
			RemoteModified: r.Modified,
			Resolution:     models.ResolutionLocalWins,
		})
	}

	updated, err := m.client.Update(ctx, *n)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// The remote note vanished; treat as a remote delete.
			m.removeLocal(n.ID)
			_ = m.store.Ack(op.Seq)
			return 0
		}
		m.endPush(op.Seq)
		m.logger.Warn("push: update deferred",
			slog.Int64("note_id", n.ID), slog.String("error", err.Error()))
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyServer(n.ID, updated, op.Seq); err != nil {
		m.logger.Error("push: apply update", slog.String("error", err.Error()))
		return 0
	}
	_ = m.store.Ack(op.Seq)
	return n.ID
}

func (m *Manager) pushFavorite(ctx context.Context, op cache.Op) int64 {
	cur, ok := m.beginPush(op)
	if !ok {
		return 0
	}
	updated, err := m.client.SetFavorite(ctx, op.NoteID, cur.Favorite)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			m.removeLocal(op.NoteID)
			_ = m.store.Ack(op.Seq)
			return 0
		}
		m.endPush(op.Seq)
		m.logger.Warn("push: favorite deferred",
			slog.Int64("note_id", op.NoteID), slog.String("error", err.Error()))
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyServer(op.NoteID, updated, op.Seq); err != nil {
		m.logger.Error("push: apply favorite", slog.String("error", err.Error()))
		return 0
	}
	_ = m.store.Ack(op.Seq)
	return op.NoteID
}

func (m *Manager) pushDelete(ctx context.Context, op cache.Op) int64 {
	err := m.client.Delete(ctx, op.NoteID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		m.logger.Warn("push: delete deferred",
			slog.Int64("note_id", op.NoteID), slog.String("error", err.Error()))
		return 0
	}

	// Confirmed (or already gone remotely): drop the cache record.
	m.mu.Lock()
	if err := m.store.Remove(op.NoteID); err != nil {
		m.mu.Unlock()
		m.logger.Error("push: remove after delete", slog.String("error", err.Error()))
		return 0
	}
	_ = m.store.Ack(op.Seq)
	m.mu.Unlock()
	return op.NoteID
}

// applyServer merges a server response into the cached note after a
// confirmed push. The server's modified timestamp and etag are always
// authoritative. Content, category, favorite, and title are adopted only
// when no op beyond the one being confirmed (selfSeq) remains queued for
// the note: a remaining op carries newer local intent for those fields,
// while a fully drained queue means the local record held nothing the
// server response does not already reflect. That adoption is what carries
// a remote content edit back into the cache when the local change was
// favorite-only. Caller holds m.mu.
func (m *Manager) applyServer(id int64, server *models.Note, selfSeq int64) error {
	n, err := m.store.Get(id)
	if err != nil {
		return err
	}
	ops, err := m.store.PendingOps()
	if err != nil {
		return err
	}
	remaining := 0
	for _, op := range ops {
		if op.NoteID == id && op.Seq != selfSeq {
			remaining++
		}
	}

	n.Modified = server.Modified
	n.ETag = server.ETag
	n.AddNeeded = false
	n.UpdateNeeded = remaining > 0
	if remaining == 0 {
		n.Content = server.Content
		n.Category = server.Category
		n.Favorite = server.Favorite
		if server.Title != "" {
			n.Title = server.Title
		}
	}
	return m.store.Upsert(*n)
}

func (m *Manager) removeLocal(id int64) {
	m.mu.Lock()
	err := m.store.Remove(id)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("remove vanished note", slog.Int64("note_id", id), slog.String("error", err.Error()))
		return
	}
	m.notify(ChangeDeleted, id)
}
