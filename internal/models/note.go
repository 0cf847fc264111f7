// Package models defines the domain types for the CloudNotes sync engine.
package models

// PlaceholderID is the starting id for locally created notes that have not
// been assigned a server id yet. Placeholder ids are negative and descend
// from here; the server only ever hands out positive ids.
const PlaceholderID int64 = -1

// Note is the central entity: a single note in the local cache together with
// its dirty flags. A note with a negative ID exists only locally.
type Note struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Favorite bool   `json:"favorite"`
	// Modified is a unix timestamp in seconds. It never regresses for a
	// given id after a successful merge.
	Modified int64 `json:"modified"`
	// ETag is the opaque marker of the last-known server state.
	ETag string `json:"etag,omitempty"`

	AddNeeded    bool `json:"add_needed,omitempty"`
	UpdateNeeded bool `json:"update_needed,omitempty"`
	DeleteNeeded bool `json:"delete_needed,omitempty"`
}

// Local reports whether the note has never been confirmed by the server.
func (n *Note) Local() bool {
	return n.ID < 0 || n.AddNeeded
}

// Dirty reports whether any mutation is pending confirmation.
func (n *Note) Dirty() bool {
	return n.AddNeeded || n.UpdateNeeded || n.DeleteNeeded
}

// Conflict resolutions.
const (
	ResolutionLocalWins  = "local_wins"
	ResolutionRemoteWins = "remote_wins"
)

// Conflict records an automatic merge decision made during a sync pass.
// It is surfaced to the caller as a notification, never as a failure.
type Conflict struct {
	NoteID         int64  `json:"note_id"`
	LocalModified  int64  `json:"local_modified"`
	RemoteModified int64  `json:"remote_modified"`
	Resolution     string `json:"resolution"`
}
