package cache

import "github.com/phedlund/cloudnotes/internal/models"

// Store defines the interface for local note storage.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Store interface {
	Get(id int64) (*models.Note, error)
	All() ([]models.Note, error)
	Active() ([]models.Note, error)
	Starred() ([]models.Note, error)
	ByCategory(name string) ([]models.Note, error)
	Categories() ([]string, error)
	Upsert(n models.Note) error
	Remove(id int64) error
	NextLocalID() (int64, error)
	Rekey(oldID, newID int64) error

	MarkDelete(id int64) error
	Pending() ([]models.Note, error)

	Enqueue(op Op) error
	PendingOps() ([]Op, error)
	MarkInFlight(seq int64, inFlight bool) error
	Ack(seq int64) error
	Drop(noteID int64) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
