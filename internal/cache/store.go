package cache

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/models"
)

const noteColumns = `id, title, content, category, favorite, modified, etag,
	add_needed, update_needed, delete_needed`

// Queries return notes ordered by modified descending; ties break on id
// ascending so the order is deterministic for equal timestamps.
const noteOrder = ` ORDER BY modified DESC, id ASC`

func scanNote(row interface{ Scan(...any) error }) (*models.Note, error) {
	var n models.Note
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Category, &n.Favorite,
		&n.Modified, &n.ETag, &n.AddNeeded, &n.UpdateNeeded, &n.DeleteNeeded)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Get returns a note by id, or apperr.ErrNotFound.
func (db *DB) Get(id int64) (*models.Note, error) {
	n, err := scanNote(db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %d: %w", id, err)
	}
	return n, nil
}

func (db *DB) queryNotes(query string, args ...any) ([]models.Note, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: query notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// All returns every cached note, including those pending add or delete.
func (db *DB) All() ([]models.Note, error) {
	return db.queryNotes(`SELECT ` + noteColumns + ` FROM notes` + noteOrder)
}

// Active returns every note not marked for deletion. This is the set the
// presentation layer sees.
func (db *DB) Active() ([]models.Note, error) {
	return db.queryNotes(`SELECT ` + noteColumns + ` FROM notes WHERE delete_needed = 0` + noteOrder)
}

// Starred returns active notes with the favorite flag set.
func (db *DB) Starred() ([]models.Note, error) {
	return db.queryNotes(`SELECT ` + noteColumns + ` FROM notes WHERE favorite = 1 AND delete_needed = 0` + noteOrder)
}

// ByCategory returns active notes in the given category. The empty string
// matches uncategorized notes.
func (db *DB) ByCategory(name string) ([]models.Note, error) {
	return db.queryNotes(`SELECT `+noteColumns+` FROM notes WHERE category = ? AND delete_needed = 0`+noteOrder, name)
}

// Categories returns the distinct non-empty category values of active notes,
// sorted alphabetically.
func (db *DB) Categories() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT category FROM notes
		WHERE category != '' AND delete_needed = 0 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("cache: categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertSQL = `
	INSERT INTO notes (id, title, content, category, favorite, modified, etag,
		add_needed, update_needed, delete_needed)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title         = excluded.title,
		content       = excluded.content,
		category      = excluded.category,
		favorite      = excluded.favorite,
		modified      = excluded.modified,
		etag          = excluded.etag,
		add_needed    = excluded.add_needed,
		update_needed = excluded.update_needed,
		delete_needed = excluded.delete_needed
`

// Upsert inserts or replaces a note by id.
func (db *DB) Upsert(n models.Note) error {
	_, err := db.conn.Exec(upsertSQL, n.ID, n.Title, n.Content, n.Category,
		n.Favorite, n.Modified, n.ETag, n.AddNeeded, n.UpdateNeeded, n.DeleteNeeded)
	if err != nil {
		return fmt.Errorf("cache: upsert note %d: %w", n.ID, err)
	}
	return nil
}

// Remove permanently deletes a note record. Only called after the deletion
// was confirmed remotely, or for notes that never reached the server.
func (db *DB) Remove(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("cache: remove note %d: %w", id, err)
	}
	return nil
}

// NextLocalID returns the next free placeholder id (negative, descending).
func (db *DB) NextLocalID() (int64, error) {
	var min sql.NullInt64
	if err := db.conn.QueryRow(`SELECT MIN(id) FROM notes WHERE id < 0`).Scan(&min); err != nil {
		return 0, fmt.Errorf("cache: next local id: %w", err)
	}
	if !min.Valid {
		return models.PlaceholderID, nil
	}
	return min.Int64 - 1, nil
}

// Rekey replaces a placeholder id with the server-assigned one, cascading to
// any queued operations for the note.
func (db *DB) Rekey(oldID, newID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE notes SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("cache: rekey note %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.Exec(`UPDATE ops SET note_id = ? WHERE note_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("cache: rekey ops %d -> %d: %w", oldID, newID, err)
	}
	return tx.Commit()
}
