package cache

import (
	"fmt"
	"time"
)

// Operation kinds queued for replay against the remote service.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpFavorite = "favorite"
)

// Op is one pending mutation in the offline queue. Ops for a given note are
// replayed in enqueue order; ops for different notes are independent.
type Op struct {
	Seq        int64
	NoteID     int64
	Kind       string
	Content    string
	Category   string
	Favorite   bool
	EnqueuedAt int64
}

// Enqueue appends an operation, applying the coalescing rules:
//
//   - an update folds into a queued create or update for the same note
//     (last write wins locally)
//   - a favorite toggle replaces a queued favorite toggle for the same note
//   - a delete discards every queued op for the note; when one of them was a
//     create the delete itself is dropped too, since no server record exists
//
// Rows marked in flight are never coalesced into: their payload is already
// on the wire, so folding a newer edit into them would confirm it away when
// the stale push is acked. Such edits append a fresh row instead.
func (db *DB) Enqueue(op Op) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if op.EnqueuedAt == 0 {
		op.EnqueuedAt = time.Now().Unix()
	}

	switch op.Kind {
	case OpUpdate:
		res, err := tx.Exec(`UPDATE ops SET content = ?, category = ?, enqueued_at = ?
			WHERE note_id = ? AND kind IN (?, ?) AND in_flight = 0`,
			op.Content, op.Category, op.EnqueuedAt, op.NoteID, OpCreate, OpUpdate)
		if err != nil {
			return fmt.Errorf("cache: coalesce update: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return tx.Commit()
		}

	case OpFavorite:
		res, err := tx.Exec(`UPDATE ops SET favorite = ?, enqueued_at = ?
			WHERE note_id = ? AND kind = ? AND in_flight = 0`,
			op.Favorite, op.EnqueuedAt, op.NoteID, OpFavorite)
		if err != nil {
			return fmt.Errorf("cache: coalesce favorite: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return tx.Commit()
		}

	case OpDelete:
		var creates int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM ops WHERE note_id = ? AND kind = ?`,
			op.NoteID, OpCreate).Scan(&creates); err != nil {
			return fmt.Errorf("cache: count queued creates: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM ops WHERE note_id = ?`, op.NoteID); err != nil {
			return fmt.Errorf("cache: discard queued ops: %w", err)
		}
		if creates > 0 {
			// The note never reached the server; nothing to delete there.
			return tx.Commit()
		}
	}

	_, err = tx.Exec(`INSERT INTO ops (note_id, kind, content, category, favorite, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		op.NoteID, op.Kind, op.Content, op.Category, op.Favorite, op.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("cache: enqueue %s for %d: %w", op.Kind, op.NoteID, err)
	}
	return tx.Commit()
}

// PendingOps returns all queued operations in FIFO order.
func (db *DB) PendingOps() ([]Op, error) {
	rows, err := db.conn.Query(`SELECT seq, note_id, kind, content, category, favorite, enqueued_at
		FROM ops ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("cache: pending ops: %w", err)
	}
	defer rows.Close()

	var out []Op
	for rows.Next() {
		var op Op
		if err := rows.Scan(&op.Seq, &op.NoteID, &op.Kind, &op.Content,
			&op.Category, &op.Favorite, &op.EnqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// MarkInFlight flags or unflags a queue row as currently being pushed.
func (db *DB) MarkInFlight(seq int64, inFlight bool) error {
	if _, err := db.conn.Exec(`UPDATE ops SET in_flight = ? WHERE seq = ?`, inFlight, seq); err != nil {
		return fmt.Errorf("cache: mark op %d in flight: %w", seq, err)
	}
	return nil
}

// Ack removes a confirmed operation from the queue.
func (db *DB) Ack(seq int64) error {
	if _, err := db.conn.Exec(`DELETE FROM ops WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("cache: ack op %d: %w", seq, err)
	}
	return nil
}

// Drop removes every queued operation for a note.
func (db *DB) Drop(noteID int64) error {
	if _, err := db.conn.Exec(`DELETE FROM ops WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("cache: drop ops for %d: %w", noteID, err)
	}
	return nil
}
