package api

import "github.com/phedlund/cloudnotes/internal/models"

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
}

// FavoriteRequest is the request body for setting the favorite flag.
type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// NoteResponse is the full note payload.
type NoteResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Favorite bool   `json:"favorite"`
	Modified int64  `json:"modified"`
	// Pending is true while the note has unsynced local changes.
	Pending bool `json:"pending"`
}

func toNoteResponse(n models.Note) NoteResponse {
	return NoteResponse{
		ID:       n.ID,
		Title:    n.Title,
		Content:  n.Content,
		Category: n.Category,
		Favorite: n.Favorite,
		Modified: n.Modified,
		Pending:  n.Dirty(),
	}
}

// NoteListResponse wraps a note listing.
type NoteListResponse struct {
	Notes []NoteResponse `json:"notes"`
	Total int            `json:"total"`
}

// TreeNodeResponse is one node of the presentation tree.
type TreeNodeResponse struct {
	Title    string             `json:"title"`
	SortID   int64              `json:"sort_id"`
	Leaf     bool               `json:"leaf"`
	Modified int64              `json:"modified,omitempty"`
	Children []TreeNodeResponse `json:"children,omitempty"`
}

// TreeResponse wraps the full presentation tree.
type TreeResponse struct {
	Roots []TreeNodeResponse `json:"roots"`
}
