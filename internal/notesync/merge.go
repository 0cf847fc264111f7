package notesync

import (
	"log/slog"

	"github.com/phedlund/cloudnotes/internal/models"
)

// merge is the pull phase: it folds the fetched remote note set into the
// local cache without disturbing uncommitted local intent.
//
// Per remote note R against local counterpart L:
//
//  1. no L            → insert R, no flags
//  2. L clean         → replace when R is newer (last-modified wins),
//     unless L's push was confirmed this pass (R predates that write)
//  3. L update_needed → leave L untouched; the push phase owns the outcome
//  4. L delete_needed → leave L; the queued delete retries next pass
//
// A clean local note with a server id that is absent from the remote set was
// deleted remotely and is removed, except notes whose push was confirmed
// during this same pass, which are newer than the fetched snapshot.
func (m *Manager) merge(remotes []models.Note, remoteByID map[int64]models.Note, confirmed map[int64]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locals, err := m.store.All()
	if err != nil {
		m.logger.Error("merge: read cache", slog.String("error", err.Error()))
		return
	}
	localByID := make(map[int64]models.Note, len(locals))
	for _, l := range locals {
		localByID[l.ID] = l
	}

	for _, r := range remotes {
		l, ok := localByID[r.ID]
		if !ok {
			if err := m.store.Upsert(r); err != nil {
				m.logger.Error("merge: insert remote note",
					slog.Int64("note_id", r.ID), slog.String("error", err.Error()))
				continue
			}
			m.notify(ChangeCreated, r.ID)
			continue
		}

		if l.Dirty() {
			// Pending local intent; the push phase decides.
			continue
		}

		if _, ok := confirmed[r.ID]; ok {
			// Pushed after the fetch; the snapshot predates that write.
			continue
		}

		if r.Modified > l.Modified {
			if err := m.store.Upsert(r); err != nil {
				m.logger.Error("merge: apply remote note",
					slog.Int64("note_id", r.ID), slog.String("error", err.Error()))
				continue
			}
			m.notify(ChangeUpdated, r.ID)
		}
	}

	for _, l := range locals {
		if l.Dirty() || l.ID < 0 {
			continue
		}
		if _, ok := remoteByID[l.ID]; ok {
			continue
		}
		if _, ok := confirmed[l.ID]; ok {
			// Pushed after the fetch; the snapshot is just stale.
			continue
		}
		if err := m.store.Remove(l.ID); err != nil {
			m.logger.Error("merge: remove note deleted remotely",
				slog.Int64("note_id", l.ID), slog.String("error", err.Error()))
			continue
		}
		m.notify(ChangeDeleted, l.ID)
	}
}
