// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the Eihwaz tree store for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/store"
)

// Server wraps the MCP server with Eihwaz tools. The stdio transport handles
// one request at a time, which satisfies the store's serialization contract.
type Server struct {
	mcp *server.MCPServer
	st  *store.Store
}

// New creates a new MCP server with all Eihwaz tools registered.
func New(st *store.Store) *Server {
	s := &Server{st: st}

	s.mcp = server.NewMCPServer(
		"Eihwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Search folders and documents by name and path with scored matching."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNodes)

	s.mcp.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("Return the full folder/document tree as an indented outline with node ids."),
	), s.getOutline)

	s.mcp.AddTool(mcp.NewTool("read_content",
		mcp.WithDescription("Read a document's structured content (icon, markdown, fields, tags, links)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id of the document")),
	), s.readContent)

	s.mcp.AddTool(mcp.NewTool("create_node",
		mcp.WithDescription("Create a folder or document. Documents get an empty content record."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Either 'folder' or 'leaf'")),
		mcp.WithString("parent_id", mcp.Description("Parent folder id (empty for root level)")),
	), s.createNode)

	s.mcp.AddTool(mcp.NewTool("move_node",
		mcp.WithDescription("Move a node under a new parent folder (empty parent_id for root level). "+
			"Moving a node into its own subtree is rejected."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id to move")),
		mcp.WithString("parent_id", mcp.Description("Target folder id (empty for root level)")),
	), s.moveNode)

	s.mcp.AddTool(mcp.NewTool("update_markdown",
		mcp.WithDescription("Replace the markdown body of a document."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id of the document")),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("New markdown body")),
	), s.updateMarkdown)

	s.mcp.AddTool(mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node and its entire subtree, including document contents."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id to delete")),
	), s.deleteNode)

	// Resource: the current outline.
	s.mcp.AddResource(
		mcp.NewResource("eihwaz://outline", "Tree Outline",
			mcp.WithResourceDescription("Indented outline of all folders and documents."),
			mcp.WithMIMEType("text/plain"),
		),
		s.readOutlineResource,
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

func (s *Server) searchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results := s.st.Search(query, 20)
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.outline()), nil
}

func (s *Server) readContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.st.GetContent(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not a document: %s", id)), nil
	}
	out, _ := json.MarshalIndent(c, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeType := models.NodeType(typ)
	if !nodeType.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid type: %s", typ)), nil
	}

	var parentID *string
	if p, err := req.RequireString("parent_id"); err == nil && p != "" {
		if s.st.GetNode(p) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown parent: %s", p)), nil
		}
		parentID = &p
	}

	n, err := s.st.CreateNode(store.CreateParams{Name: name, Type: nodeType, ParentID: parentID})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created %s: %s", n.Type, n.ID)), nil
}

func (s *Server) moveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var parentID *string
	if p, err := req.RequireString("parent_id"); err == nil && p != "" {
		parentID = &p
	}

	n, err := s.st.MoveNode(id, parentID)
	if err != nil {
		if errors.Is(err, apperr.ErrCycle) {
			return mcp.NewToolResultError("move rejected: would create a cycle"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n == nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown node or parent: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s", id)), nil
}

func (s *Server) updateMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Content updates go through the selection, per the store contract.
	if err := s.st.SelectNode(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.st.UpdateContent(store.ContentUpdate{Markdown: &body})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not a document: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) deleteNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.st.DeleteNode(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) readOutlineResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "eihwaz://outline",
			MIMEType: "text/plain",
			Text:     s.outline(),
		},
	}, nil
}

// outline renders the tree as an indented list of "name [type] (id)" lines.
func (s *Server) outline() string {
	var b strings.Builder
	var walk func(parentID string, depth int)
	walk = func(parentID string, depth int) {
		for _, n := range s.st.GetChildren(parentID) {
			b.WriteString(strings.Repeat("  ", depth))
			fmt.Fprintf(&b, "- %s [%s] (%s)\n", n.Name, n.Type, n.ID)
			if n.Type == models.TypeFolder {
				walk(n.ID, depth+1)
			}
		}
	}
	walk("", 0)
	if b.Len() == 0 {
		return "(empty tree)"
	}
	return b.String()
}
