// Package breadcrumb flattens the current drill-down position in the
// variable tree into a single filtered view with push/pop navigation. The
// navigator owns only its path; it reads the tree cache but never mutates
// cache or expansion state.
package breadcrumb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentic-research/scopetree/internal/vartree"
)

// Separator joins path segments for display.
const Separator = " › "

// NavigationError reports a recoverable navigation failure: the requested
// segment is not present in the current view, or the path is already at
// the root. The path is left unchanged.
type NavigationError struct {
	Name   string
	Reason string
}

func (e *NavigationError) Error() string {
	if e.Name == "" {
		return "navigate: " + e.Reason
	}
	return fmt.Sprintf("navigate to %q: %s", e.Name, e.Reason)
}

// View is one filtered projection of the tree: the children of the node at
// the end of the current path. Truncated is set when part of the path no
// longer resolved against the live tree and was dropped.
type View struct {
	Path      []string
	Rows      []vartree.Item
	Truncated bool
	Dropped   []string
}

// Navigator is a small state machine over a sequence of node names.
// Initial state is the root (empty path).
type Navigator struct {
	cache *vartree.Cache
	proj  *vartree.Projector

	mu   sync.Mutex
	path []string
}

func NewNavigator(cache *vartree.Cache, proj *vartree.Projector) *Navigator {
	return &Navigator{cache: cache, proj: proj}
}

// Path returns a copy of the current breadcrumb path.
func (n *Navigator) Path() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.path...)
}

// Text renders the breadcrumb path for display.
func (n *Navigator) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.path) == 0 {
		return ""
	}
	return strings.Join(n.path, Separator)
}

// NavigateDown appends name to the path. The named child must exist in the
// current filtered view; otherwise the path is unchanged and a
// NavigationError is returned.
func (n *Navigator) NavigateDown(ctx context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	nodeID, _, err := n.resolveLocked(ctx)
	if err != nil {
		return err
	}
	if nodeID != "" {
		if err := n.cache.EnsureFetched(ctx, nodeID); err != nil {
			return err
		}
	}
	if _, ok := n.cache.FindChild(nodeID, name); !ok {
		return &NavigationError{Name: name, Reason: "no such child in current view"}
	}
	n.path = append(n.path, name)
	return nil
}

// NavigateUp pops the last path segment. At the root it is a no-op,
// reported as a NavigationError.
func (n *Navigator) NavigateUp() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.path) == 0 {
		return &NavigationError{Reason: "already at root"}
	}
	n.path = n.path[:len(n.path)-1]
	return nil
}

// Reset returns the navigator to the root.
func (n *Navigator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = nil
}

// FilteredNodes resolves the current path against the tree, fetching
// lazily, and returns the children of the node at the end of the path. If a
// segment no longer resolves (the debuggee resumed, scopes changed), the
// path is truncated to the last resolvable prefix and the truncation is
// reported in the returned view.
func (n *Navigator) FilteredNodes(ctx context.Context) (View, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nodeID, dropped, err := n.resolveLocked(ctx)
	view := View{
		Path:      append([]string(nil), n.path...),
		Truncated: len(dropped) > 0,
		Dropped:   dropped,
	}
	if err != nil {
		return view, err
	}

	rows, err := n.childItemsLocked(ctx, nodeID)
	if err != nil {
		return view, err
	}
	view.Rows = rows
	return view, nil
}

// resolveLocked walks the path from the scope roots, fetching each node on
// the way down. Unresolvable segments truncate the path in place; fetch
// failures abort resolution with the fetch error after truncating.
func (n *Navigator) resolveLocked(ctx context.Context) (nodeID string, dropped []string, err error) {
	current := ""
	for i, name := range n.path {
		if current != "" {
			if err := n.cache.EnsureFetched(ctx, current); err != nil {
				dropped = append([]string(nil), n.path[i:]...)
				n.path = n.path[:i]
				return "", dropped, err
			}
		}
		childID, ok := n.cache.FindChild(current, name)
		if !ok {
			dropped = append([]string(nil), n.path[i:]...)
			n.path = n.path[:i]
			return current, dropped, nil
		}
		current = childID
	}
	return current, nil, nil
}

func (n *Navigator) childItemsLocked(ctx context.Context, nodeID string) ([]vartree.Item, error) {
	if nodeID == "" {
		// Root view: the scope list itself.
		return n.proj.Items(ctx, "")
	}

	node, err := n.cache.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if !node.HasChildren() {
		return []vartree.Item{}, nil
	}
	if err := n.cache.EnsureFetched(ctx, nodeID); err != nil {
		return nil, err
	}

	childIDs, err := n.cache.ListChildren(nodeID)
	if err != nil {
		return nil, err
	}
	items := make([]vartree.Item, 0, len(childIDs))
	for _, id := range childIDs {
		child, err := n.cache.GetNode(id)
		if err != nil {
			continue
		}
		items = append(items, vartree.Item{
			ID:          id,
			Label:       child.Name,
			Value:       vartree.RenderPreview(child.Value),
			HasChildren: child.HasChildren(),
		})
	}
	return items, nil
}
