// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ehwaz sync operations for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/scheduler"
	"github.com/starford/ehwaz/internal/storage"
	"github.com/starford/ehwaz/internal/syncer"
)

// SyncService is the orchestrator surface the MCP tools call into.
type SyncService interface {
	ImportAll(ctx context.Context) (syncer.Report, error)
	SyncAll(ctx context.Context) (syncer.Report, error)
	ExportDocument(ctx context.Context, path string) (syncer.ExportStatus, error)
}

// Server wraps the MCP server with Ehwaz tools.
type Server struct {
	mcp      *server.MCPServer
	store    storage.Provider
	db       index.DocumentIndex
	sync     SyncService
	statusFn func() scheduler.Status
}

// New creates a new MCP server with all Ehwaz tools registered.
func New(store storage.Provider, db index.DocumentIndex, sync SyncService, statusFn func() scheduler.Status) *Server {
	s := &Server{store: store, db: db, sync: sync, statusFn: statusFn}

	s.mcp = server.NewMCPServer(
		"Ehwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("import_all",
		mcp.WithDescription("Import every page of the configured remote database into the vault. "+
			"Returns counts of imported, updated, skipped, and failed pages."),
	), s.importAll)

	s.mcp.AddTool(mcp.NewTool("export_note",
		mcp.WithDescription("Export one linked note to its remote page. The note must carry the "+
			"linked-note header (see the ehwaz://note-format resource). Returns the export status."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.exportNote)

	s.mcp.AddTool(mcp.NewTool("sync_all",
		mcp.WithDescription("Export every tracked note whose local copy looks newer than its sync watermark."),
	), s.syncAll)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Read the scheduler's current state: queue length, rate-budget tokens, "+
			"and consecutive throttle count."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note, header included."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List tracked notes with their remote link state."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	// Resource: linked-note header contract.
	s.mcp.AddResource(
		mcp.NewResource("ehwaz://note-format", "Linked Note Format",
			mcp.WithResourceDescription("Header format linking a Markdown note to its remote page."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

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

func (s *Server) importAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.sync.ImportAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rep.Dropped {
		return mcp.NewToolResultError("import already running"), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) exportNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.sync.ExportDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(status)), nil
}

func (s *Server) syncAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.sync.SyncAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rep.Dropped {
		return mcp.NewToolResultError("sync already running"), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.statusFn()
	out, _ := json.MarshalIndent(map[string]any{
		"queue_length":          st.QueueLength,
		"tokens":                st.Tokens,
		"consecutive_throttles": st.ConsecutiveThrottles,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = f
	}

	metas, err := s.store.List(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, m := range metas {
		row, err := s.db.GetByPath(m.Path)
		switch {
		case err == nil && row != nil && row.PageID != "":
			lines = append(lines, fmt.Sprintf("%s\t(linked: %s)", m.Path, row.PageID))
		default:
			lines = append(lines, m.Path)
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ehwaz://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
