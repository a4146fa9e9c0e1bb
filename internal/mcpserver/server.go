// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes typing state, edit statistics and header fields to LLM clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/noteservice"
)

// ContractURI identifies the header format resource.
const ContractURI = "timethings://header-format"

// Server wraps the MCP server with the timethings tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *noteservice.Service
	settings func() metasync.Settings
}

// New creates a new MCP server with all tools registered. settings is read
// whenever the header contract is rendered.
func New(svc *noteservice.Service, settings func() metasync.Settings) *Server {
	s := &Server{svc: svc, settings: settings}

	s.mcp = server.NewMCPServer(
		"timethings",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("typing_status",
		mcp.WithDescription("Whether the user is currently editing, which note, and for how long."),
	), s.typingStatus)

	s.mcp.AddTool(mcp.NewTool("most_edited_notes",
		mcp.WithDescription("Notes ranked by total active editing time."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 10)")),
	), s.mostEdited)

	s.mcp.AddTool(mcp.NewTool("edit_sessions",
		mcp.WithDescription("Recent editing sessions, newest first."),
		mcp.WithString("path", mcp.Description("Only sessions of this note (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default 10)")),
	), s.editSessions)

	s.mcp.AddTool(mcp.NewTool("get_header_value",
		mcp.WithDescription("Read one frontmatter field of a note. Nested fields use dot-separated keys."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Header key, e.g. updated_at or meta.status")),
	), s.getHeaderValue)

	s.mcp.AddTool(mcp.NewTool("set_header_value",
		mcp.WithDescription("Write one frontmatter field of a note. "+
			"Read the header contract first via get_header_contract or the "+ContractURI+" resource: "+
			"the modified and duration fields are maintained automatically."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Header key")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value")),
	), s.setHeaderValue)

	s.mcp.AddTool(mcp.NewTool("get_header_contract",
		mcp.WithDescription("Returns the frontmatter fields this server maintains and their formats."),
	), s.getHeaderContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Header Format Contract",
			mcp.WithResourceDescription("Managed frontmatter fields and their formats."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Handler returns the MCP server as a streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) typingStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) mostEdited(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.MostEdited(ctx, req.GetInt("limit", 10))
	if err != nil {
		return toolError(err), nil
	}
	if len(stats) == 0 {
		return mcp.NewToolResultText("no edits recorded yet"), nil
	}
	return jsonResult(stats)
}

func (s *Server) editSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.svc.Sessions(ctx, req.GetString("path", ""), req.GetInt("limit", 10))
	if err != nil {
		return toolError(err), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("no sessions recorded yet"), nil
	}
	return jsonResult(sessions)
}

func (s *Server) getHeaderValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := s.svc.HeaderValue(ctx, path, key)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(value), nil
}

func (s *Server) setHeaderValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SetHeaderValue(ctx, path, key, value); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s %s", path, key)), nil
}

func (s *Server) getHeaderContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(HeaderContract(s.settings())), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     HeaderContract(s.settings()),
		},
	}, nil
}
