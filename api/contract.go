// Package api declares the narrow contracts the variable-tree core exposes
// to its host collaborators. A tree-widget host needs only "list items for
// a node" and "is this node expanded"; a breadcrumb host needs push/pop
// navigation over the filtered view.
package api

import "context"

// TreeItem is one child entry of a lazily-listed tree node.
type TreeItem struct {
	// ID is the stable, path-derived node id.
	ID string `json:"id"`
	// Label is the display name.
	Label string `json:"label"`
	// Value is the rendered value preview ("" for scopes).
	Value string `json:"value,omitempty"`
	// HasChildren reports expandable structure without fetching it.
	HasChildren bool `json:"hasChildren"`
}

// TreeSource is the generic lazy tree-source contract. Listing a collapsed
// parent returns an empty slice and performs no remote traffic.
type TreeSource interface {
	Items(ctx context.Context, parentID string) ([]TreeItem, error)
	ToggleExpand(id string) bool
	IsExpanded(id string) bool
}

// BreadcrumbView is one filtered projection of the drill-down path.
type BreadcrumbView struct {
	Path      []string   `json:"path"`
	Items     []TreeItem `json:"items"`
	Truncated bool       `json:"truncated"`
	Dropped   []string   `json:"dropped,omitempty"`
}

// BreadcrumbSource is the drill-down navigation contract.
type BreadcrumbSource interface {
	NavigateDown(ctx context.Context, name string) error
	NavigateUp() error
	Text() string
	FilteredNodes(ctx context.Context) (BreadcrumbView, error)
}
