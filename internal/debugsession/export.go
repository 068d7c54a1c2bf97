package debugsession

import (
	"context"

	"github.com/agentic-research/scopetree/api"
	"github.com/agentic-research/scopetree/internal/vartree"
)

// Export adapts a session to the public host contracts in api.
type Export struct {
	s *Session
}

var (
	_ api.TreeSource       = (*Export)(nil)
	_ api.BreadcrumbSource = (*Export)(nil)
)

// Export returns the session's host-facing adapter.
func (s *Session) Export() *Export {
	return &Export{s: s}
}

func (e *Export) Items(ctx context.Context, parentID string) ([]api.TreeItem, error) {
	items, err := e.s.Items(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return toTreeItems(items), nil
}

func (e *Export) ToggleExpand(id string) bool { return e.s.ToggleExpand(id) }

func (e *Export) IsExpanded(id string) bool { return e.s.IsExpanded(id) }

func (e *Export) NavigateDown(ctx context.Context, name string) error {
	return e.s.nav.NavigateDown(ctx, name)
}

func (e *Export) NavigateUp() error { return e.s.nav.NavigateUp() }

func (e *Export) Text() string { return e.s.nav.Text() }

func (e *Export) FilteredNodes(ctx context.Context) (api.BreadcrumbView, error) {
	view, err := e.s.nav.FilteredNodes(ctx)
	out := api.BreadcrumbView{
		Path:      view.Path,
		Items:     toTreeItems(view.Rows),
		Truncated: view.Truncated,
		Dropped:   view.Dropped,
	}
	return out, err
}

func toTreeItems(items []vartree.Item) []api.TreeItem {
	out := make([]api.TreeItem, 0, len(items))
	for _, it := range items {
		out = append(out, api.TreeItem{
			ID:          it.ID,
			Label:       it.Label,
			Value:       it.Value,
			HasChildren: it.HasChildren,
		})
	}
	return out
}
