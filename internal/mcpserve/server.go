// Package mcpserve exposes the variable tree and breadcrumb navigator as
// MCP tools, so an agent or editor host can drive the session over stdio.
package mcpserve

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/scopetree/internal/breadcrumb"
	"github.com/agentic-research/scopetree/internal/debugsession"
	"github.com/agentic-research/scopetree/internal/vartree"
)

// Version is reported to MCP clients during initialization.
const Version = "0.3.0"

// New builds an MCP server wrapping one debug session.
func New(session *debugsession.Session, log *slog.Logger) *server.MCPServer {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{session: session, log: log}

	s := server.NewMCPServer("scopetree", Version)

	s.AddTool(mcp.NewTool("variables_items",
		mcp.WithDescription("List the visible children of a variable tree node. An empty parent_id lists the scope roots; a collapsed parent yields an empty list without touching the debuggee."),
		mcp.WithString("parent_id", mcp.Description("Node id, e.g. scope:Global/process. Empty for the scope roots.")),
	), h.variablesItems)

	s.AddTool(mcp.NewTool("variables_toggle",
		mcp.WithDescription("Toggle expansion intent for a node id. Returns the new state; the fetch happens lazily on the next listing."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id to toggle.")),
	), h.variablesToggle)

	s.AddTool(mcp.NewTool("crumb_down",
		mcp.WithDescription("Drill the breadcrumb path down into a named child of the current view."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name of the child to enter.")),
	), h.crumbDown)

	s.AddTool(mcp.NewTool("crumb_up",
		mcp.WithDescription("Pop the last breadcrumb path segment."),
	), h.crumbUp)

	s.AddTool(mcp.NewTool("crumb_show",
		mcp.WithDescription("Show the current breadcrumb path."),
	), h.crumbShow)

	s.AddTool(mcp.NewTool("crumb_filtered",
		mcp.WithDescription("List the children of the node at the end of the breadcrumb path, fetching lazily. Reports path truncation when the tree moved underneath the path."),
	), h.crumbFiltered)

	return s
}

type handlers struct {
	session *debugsession.Session
	log     *slog.Logger
}

func (h *handlers) variablesItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parentID := request.GetString("parent_id", "")
	items, err := h.session.Items(ctx, parentID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"parent_id": parentID,
		"items":     itemsPayload(items),
	})
}

func (h *handlers) variablesToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := request.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expanded := h.session.ToggleExpand(nodeID)
	return jsonResult(map[string]any{
		"node_id":  nodeID,
		"expanded": expanded,
	})
}

func (h *handlers) crumbDown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.session.Navigator().NavigateDown(ctx, name); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"path": h.session.Navigator().Path(),
		"text": h.session.Navigator().Text(),
	})
}

func (h *handlers) crumbUp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.session.Navigator().NavigateUp(); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"path": h.session.Navigator().Path(),
		"text": h.session.Navigator().Text(),
	})
}

func (h *handlers) crumbShow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"path": h.session.Navigator().Path(),
		"text": h.session.Navigator().Text(),
	})
}

func (h *handlers) crumbFiltered(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := h.session.Navigator().FilteredNodes(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"path":      view.Path,
		"truncated": view.Truncated,
		"dropped":   view.Dropped,
		"items":     itemsPayload(view.Rows),
	})
}

func itemsPayload(items []vartree.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"id":           it.ID,
			"label":        it.Label,
			"value":        it.Value,
			"has_children": it.HasChildren,
		})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(oj.JSON(v)), nil
}

// toolError maps the session's recoverable error taxonomy onto tool-result
// errors. Nothing here terminates the server.
func toolError(err error) *mcp.CallToolResult {
	var nav *breadcrumb.NavigationError
	switch {
	case errors.As(err, &nav):
		return mcp.NewToolResultError("navigation: " + nav.Error())
	case errors.Is(err, vartree.ErrStaleReference):
		return mcp.NewToolResultError("stale pause: the debuggee moved on; retry after the next stop")
	case errors.Is(err, vartree.ErrNotFound):
		return mcp.NewToolResultError("unknown node id for the current pause")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
