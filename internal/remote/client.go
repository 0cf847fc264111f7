// Package remote implements the client for the server-side notes API.
package remote

import (
	"context"

	"github.com/phedlund/cloudnotes/internal/models"
)

// Client is the interface the sync engine uses to talk to the remote
// service. Implementations translate transport and protocol failures into
// the apperr sentinels:
//
//   - apperr.ErrNetwork: transient; the operation stays queued
//   - apperr.ErrNotFound: the remote note vanished
//   - apperr.ErrConflict: the remote version diverged
type Client interface {
	// FetchAll returns the complete remote note set.
	FetchAll(ctx context.Context) ([]models.Note, error)
	// Create makes a new remote note and returns it with the
	// server-assigned id, modified timestamp, and etag.
	Create(ctx context.Context, content, category string) (*models.Note, error)
	// Update pushes local fields for an existing remote note and returns
	// the server's resulting state.
	Update(ctx context.Context, n models.Note) (*models.Note, error)
	// Delete removes a remote note.
	Delete(ctx context.Context, id int64) error
	// SetFavorite updates only the favorite flag of a remote note.
	SetFavorite(ctx context.Context, id int64, favorite bool) (*models.Note, error)
}
