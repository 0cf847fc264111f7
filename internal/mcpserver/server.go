// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notesync"
)

// Server wraps the MCP server with note tools.
type Server struct {
	mcp   *server.MCPServer
	mgr   *notesync.Manager
	store cache.Store
}

// New creates a new MCP server with all note tools registered.
func New(mgr *notesync.Manager, store cache.Store) *Server {
	s := &Server{mgr: mgr, store: store}

	s.mcp = server.NewMCPServer(
		"CloudNotes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes with id, title and category. Optionally filter by category."),
		mcp.WithString("category", mcp.Description("Optional category filter (empty for all notes)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Numeric note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The first Markdown heading or line becomes the title. "+
			"The note syncs to the configured server on the next pass if it cannot be pushed immediately."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the note")),
		mcp.WithString("category", mcp.Description("Optional category for the note")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content (and optionally the category) of an existing note."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Numeric note id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
		mcp.WithString("category", mcp.Description("New category (omit to keep the current one)")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note locally and from the server."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Numeric note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List all note categories."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Run one sync pass against the configured notes server."),
	), s.syncNow)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type noteSummary struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Favorite bool   `json:"favorite"`
	Modified int64  `json:"modified"`
	Pending  bool   `json:"pending"`
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := ""
	if c, err := req.RequireString("category"); err == nil {
		category = c
	}

	var (
		notes []models.Note
		err   error
	)
	if category == "" {
		notes, err = s.store.Active()
	} else {
		notes, err = s.store.ByCategory(category)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries := make([]noteSummary, len(notes))
	for i, n := range notes {
		summaries[i] = noteSummary{
			ID:       n.ID,
			Title:    n.Title,
			Category: n.Category,
			Favorite: n.Favorite,
			Modified: n.Modified,
			Pending:  n.Dirty(),
		}
	}
	out, _ := json.MarshalIndent(summaries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.mgr.Get(int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: note %d", id)), nil
	}
	return mcp.NewToolResultText(n.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category := ""
	if c, err := req.RequireString("category"); err == nil {
		category = c
	}

	n, err := s.mgr.Add(ctx, content, category)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created note %d: %s", n.ID, n.Title)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	current, err := s.mgr.Get(int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: note %d", id)), nil
	}
	category := current.Category
	if c, err := req.RequireString("category"); err == nil {
		category = c
	}

	n, err := s.mgr.Update(ctx, int64(id), content, category)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated note %d: %s", n.ID, n.Title)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mgr.Delete(ctx, int64(id)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted note %d", id)), nil
}

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.store.Categories()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cats) == 0 {
		return mcp.NewToolResultText("no categories"), nil
	}
	return mcp.NewToolResultText(strings.Join(cats, "\n")), nil
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.mgr.Sync(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("sync complete"), nil
}
