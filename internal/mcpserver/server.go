// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Laguz context-ledger tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/contextservice"
	"github.com/starford/laguz/internal/models"
)

// Server wraps the MCP server with Laguz tools.
type Server struct {
	mcp *server.MCPServer
	svc *contextservice.Service
}

// New creates a new MCP server with all Laguz tools registered.
func New(svc *contextservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Laguz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_context",
		mcp.WithDescription("Create a new conversation context with an optional name."),
		mcp.WithString("name", mcp.Description("Optional context name (max 255 characters)")),
	), s.createContext)

	s.mcp.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Get a context by id, including its message count, total tokens, and latest version."),
		mcp.WithString("context_id", mcp.Required(), mcp.Description("Context UUID")),
	), s.getContext)

	s.mcp.AddTool(mcp.NewTool("delete_context",
		mcp.WithDescription("Soft-delete a context. Its messages become unreachable; there is no undelete."),
		mcp.WithString("context_id", mcp.Required(), mcp.Description("Context UUID")),
	), s.deleteContext)

	s.mcp.AddTool(mcp.NewTool("append_messages",
		mcp.WithDescription("Append a batch of messages to a context's ledger. Versions are assigned "+
			"sequentially in the given order."),
		mcp.WithString("context_id", mcp.Required(), mcp.Description("Context UUID")),
		mcp.WithString("messages", mcp.Required(), mcp.Description(
			`JSON array of messages, e.g. [{"role":"user","content":"Hi","tokenCount":3}]. `+
				`Roles: user, assistant, system, tool (tool requires toolCallId).`)),
	), s.appendMessages)

	s.mcp.AddTool(mcp.NewTool("list_messages",
		mcp.WithDescription("List a context's messages ordered by version, with cursor pagination."),
		mcp.WithString("context_id", mcp.Required(), mcp.Description("Context UUID")),
		mcp.WithNumber("cursor", mcp.Description("Version of the last item from the previous page")),
		mcp.WithNumber("limit", mcp.Description("Page size, 1-1000 (default 50)")),
		mcp.WithString("order", mcp.Description("Sort order: asc (default) or desc")),
	), s.listMessages)

	s.mcp.AddTool(mcp.NewTool("get_window",
		mcp.WithDescription("Get the most recent messages of a context that fit a token budget, "+
			"in chronological order. At least one message is returned when any exist."),
		mcp.WithString("context_id", mcp.Required(), mcp.Description("Context UUID")),
		mcp.WithNumber("budget", mcp.Required(), mcp.Description("Token budget (positive integer)")),
	), s.getWindow)

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

func (s *Server) createContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var name *string
	if n, err := req.RequireString("name"); err == nil && n != "" {
		name = &n
	}
	c, err := s.svc.CreateContext(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) getContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("context_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.GetContext(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context not found: %s", id)), nil
	}
	return jsonResult(c)
}

func (s *Server) deleteContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("context_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.DeleteContext(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context not found: %s", id)), nil
	}
	return jsonResult(c)
}

func (s *Server) appendMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("context_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("messages")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var batch []models.AppendMessage
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("messages must be a JSON array: %v", err)), nil
	}
	if len(batch) == 0 {
		return mcp.NewToolResultError("at least one message is required"), nil
	}
	for i, m := range batch {
		if !m.Role.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role)), nil
		}
		if m.Content == "" {
			return mcp.NewToolResultError(fmt.Sprintf("messages[%d]: content is required", i)), nil
		}
	}
	msgs, err := s.svc.AppendMessages(ctx, id, batch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(msgs)
}

func (s *Server) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("context_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := models.PageOptions{Order: models.OrderAsc}
	if c, err := req.RequireInt("cursor"); err == nil {
		cursor := int64(c)
		opts.Cursor = &cursor
	}
	if l, err := req.RequireInt("limit"); err == nil {
		opts.Limit = l
	}
	if o, err := req.RequireString("order"); err == nil && o != "" {
		if o != models.OrderAsc && o != models.OrderDesc {
			return mcp.NewToolResultError("order must be 'asc' or 'desc'"), nil
		}
		opts.Order = o
	}
	page, err := s.svc.ListMessages(ctx, id, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (s *Server) getWindow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("context_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	budget, err := req.RequireInt("budget")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if budget <= 0 {
		return mcp.NewToolResultError("budget must be a positive integer"), nil
	}
	msgs, err := s.svc.GetWindow(ctx, id, float64(budget))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(msgs)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
