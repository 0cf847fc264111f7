package cache

import (
	"fmt"

	"github.com/phedlund/cloudnotes/internal/models"
)

// Dirty-flag bookkeeping. The invariant is: at most one of add_needed and
// delete_needed is set, and update_needed may only coexist with add_needed
// (an edit to a note whose creation is still unconfirmed).

// MarkDelete flags a note as pending remote deletion and clears the other
// flags. Callers must handle the never-synced case (add_needed set) by
// removing the note outright instead; there is no server record to delete.
func (db *DB) MarkDelete(id int64) error {
	return db.setFlags(id, `delete_needed = 1, add_needed = 0, update_needed = 0`)
}

func (db *DB) setFlags(id int64, assignment string) error {
	res, err := db.conn.Exec(`UPDATE notes SET `+assignment+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("cache: set flags on %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cache: set flags: no note with id %d", id)
	}
	return nil
}

// Pending returns every note with at least one dirty flag set, oldest
// modification first so retries preserve user intent order.
func (db *DB) Pending() ([]models.Note, error) {
	return db.queryNotes(`SELECT ` + noteColumns + ` FROM notes
		WHERE add_needed = 1 OR update_needed = 1 OR delete_needed = 1
		ORDER BY modified ASC, id ASC`)
}
