package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/models"
)

// notesPath is the Nextcloud Notes app API (v1).
const notesPath = "/index.php/apps/notes/api/v1/notes"

// wireNote is the JSON representation used by the server.
type wireNote struct {
	ID       int64  `json:"id"`
	ETag     string `json:"etag"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Favorite bool   `json:"favorite"`
	Modified int64  `json:"modified"`
}

func (w wireNote) note() models.Note {
	return models.Note{
		ID:       w.ID,
		Title:    w.Title,
		Content:  w.Content,
		Category: w.Category,
		Favorite: w.Favorite,
		Modified: w.Modified,
		ETag:     w.ETag,
	}
}

// HTTP is the Client implementation backed by the real server.
//
// All calls run through a circuit breaker so that a dead or unreachable
// server fails fast instead of stalling every queued operation on its
// timeout. Semantic failures (not found, conflict) count as successes for
// the breaker; only transport failures trip it.
type HTTP struct {
	base     *url.URL
	username string
	password string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTP creates a client for the server at base (scheme://host[:port]).
func NewHTTP(base, username, password string) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote: parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid server url: %s", base)
	}

	h := &HTTP{
		base:     u,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notes-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apperr.ErrNetwork)
		},
	})
	return h, nil
}

// FetchAll implements Client.
func (h *HTTP) FetchAll(ctx context.Context) ([]models.Note, error) {
	var wires []wireNote
	if err := h.do(ctx, http.MethodGet, notesPath, nil, &wires); err != nil {
		return nil, err
	}
	out := make([]models.Note, len(wires))
	for i, w := range wires {
		out[i] = w.note()
	}
	return out, nil
}

// Create implements Client.
func (h *HTTP) Create(ctx context.Context, content, category string) (*models.Note, error) {
	body := map[string]any{"content": content, "category": category}
	var w wireNote
	if err := h.do(ctx, http.MethodPost, notesPath, body, &w); err != nil {
		return nil, err
	}
	n := w.note()
	return &n, nil
}

// Update implements Client.
func (h *HTTP) Update(ctx context.Context, n models.Note) (*models.Note, error) {
	body := map[string]any{
		"content":  n.Content,
		"category": n.Category,
		"favorite": n.Favorite,
		"modified": n.Modified,
	}
	var w wireNote
	if err := h.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", notesPath, n.ID), body, &w); err != nil {
		return nil, err
	}
	out := w.note()
	return &out, nil
}

// Delete implements Client.
func (h *HTTP) Delete(ctx context.Context, id int64) error {
	return h.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", notesPath, id), nil, nil)
}

// SetFavorite implements Client.
func (h *HTTP) SetFavorite(ctx context.Context, id int64, favorite bool) (*models.Note, error) {
	body := map[string]any{"favorite": favorite}
	var w wireNote
	if err := h.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", notesPath, id), body, &w); err != nil {
		return nil, err
	}
	out := w.note()
	return &out, nil
}

// do performs one API round-trip through the circuit breaker and decodes the
// response into out (when non-nil).
func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	_, err := h.breaker.Execute(func() (any, error) {
		return nil, h.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("remote: circuit open: %w", apperr.ErrNetwork)
	}
	return err
}

func (h *HTTP) roundTrip(ctx context.Context, method, path string, body, out any) error {
	u := *h.base
	u.Path = path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.SetBasicAuth(h.username, h.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w: %v", method, path, apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return apperr.ErrNotFound
	case resp.StatusCode == http.StatusPreconditionFailed, resp.StatusCode == http.StatusConflict:
		return apperr.ErrConflict
	case resp.StatusCode >= 500:
		return fmt.Errorf("remote: server error %d: %w", resp.StatusCode, apperr.ErrNetwork)
	default:
		return fmt.Errorf("remote: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}

// Verify *HTTP satisfies Client at compile time.
var _ Client = (*HTTP)(nil)
