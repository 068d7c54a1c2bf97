package mcpserve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scopetree/internal/breadcrumb"
	"github.com/agentic-research/scopetree/internal/dapwire"
	"github.com/agentic-research/scopetree/internal/debugsession"
	"github.com/agentic-research/scopetree/internal/vartree"
)

// newHandlers builds handlers over a session whose connection is never
// driven: the tree is empty, which is exactly the pre-first-stop state.
func newHandlers(t *testing.T) *handlers {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := debugsession.New(dapwire.NewClient(clientConn, log), log)
	return &handlers{session: session, log: log}
}

func callArgs(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return tc.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	parsed, err := oj.ParseString(resultText(t, result))
	require.NoError(t, err)
	payload, ok := parsed.(map[string]any)
	require.True(t, ok, "expected object payload, got %T", parsed)
	return payload
}

func TestVariablesItems_EmptyTreeBeforeFirstStop(t *testing.T) {
	h := newHandlers(t)

	result, err := h.variablesItems(context.Background(), callArgs("variables_items", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, "", payload["parent_id"])
	assert.Empty(t, payload["items"])
}

func TestVariablesItems_UnknownParentIsToolError(t *testing.T) {
	h := newHandlers(t)

	result, err := h.variablesItems(context.Background(),
		callArgs("variables_items", map[string]any{"parent_id": "scope:Nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown node id")
}

func TestVariablesToggle(t *testing.T) {
	h := newHandlers(t)
	ctx := context.Background()

	result, err := h.variablesToggle(ctx,
		callArgs("variables_toggle", map[string]any{"node_id": "scope:Global"}))
	require.NoError(t, err)
	payload := decodeResult(t, result)
	assert.Equal(t, true, payload["expanded"])
	assert.True(t, h.session.IsExpanded("scope:Global"))

	result, err = h.variablesToggle(ctx,
		callArgs("variables_toggle", map[string]any{"node_id": "scope:Global"}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, result)["expanded"])
}

func TestVariablesToggle_MissingArgument(t *testing.T) {
	h := newHandlers(t)

	result, err := h.variablesToggle(context.Background(), callArgs("variables_toggle", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCrumbDown_MissingChildIsToolError(t *testing.T) {
	h := newHandlers(t)

	result, err := h.crumbDown(context.Background(),
		callArgs("crumb_down", map[string]any{"name": "Global"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "navigation")
}

func TestCrumbUpAtRootIsToolError(t *testing.T) {
	h := newHandlers(t)

	result, err := h.crumbUp(context.Background(), callArgs("crumb_up", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCrumbShow(t *testing.T) {
	h := newHandlers(t)

	result, err := h.crumbShow(context.Background(), callArgs("crumb_show", nil))
	require.NoError(t, err)
	payload := decodeResult(t, result)
	assert.Empty(t, payload["path"])
	assert.Equal(t, "", payload["text"])
}

func TestToolErrorTaxonomy(t *testing.T) {
	stale := toolError(vartree.ErrStaleReference)
	assert.True(t, stale.IsError)
	assert.Contains(t, resultText(t, stale), "stale pause")

	missing := toolError(vartree.ErrNotFound)
	assert.Contains(t, resultText(t, missing), "unknown node id")

	nav := toolError(&breadcrumb.NavigationError{Name: "x", Reason: "no such child in current view"})
	assert.Contains(t, resultText(t, nav), "navigation")

	other := toolError(errors.New("adapter fault"))
	assert.Contains(t, resultText(t, other), "adapter fault")
}

func TestNewRegistersServer(t *testing.T) {
	h := newHandlers(t)
	s := New(h.session, h.log)
	require.NotNil(t, s)
}
