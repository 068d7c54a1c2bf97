package vartree

import (
	"context"
	"errors"
)

// Row is one visible line of the projected tree.
type Row struct {
	ID          string
	Name        string
	Value       string
	TypeName    string
	Depth       int
	HasChildren bool
	Expanded    bool
	Fetched     bool
	FetchErr    string // non-empty when the last expansion attempt failed
}

// Item is the host lazy tree-source contract: the minimum a generic tree
// widget needs to render one child entry.
type Item struct {
	ID          string
	Label       string
	Value       string
	HasChildren bool
}

// Projector turns (cache state, expansion state) into the flat ordered list
// of visible rows. The projection is deterministic and cheap relative to
// the fetches it guards, so it is recomputed on every visibility query and
// never cached itself. The only suspension point is EnsureFetched on an
// expanded node; children below a collapsed node are never touched.
type Projector struct {
	cache    *Cache
	exp      *ExpansionState
	previews *PreviewCache
}

func NewProjector(cache *Cache, exp *ExpansionState) *Projector {
	return &Projector{
		cache:    cache,
		exp:      exp,
		previews: NewPreviewCache(1024),
	}
}

// Rows projects the full visible tree, depth-first pre-order from the
// scope roots. A node whose fetch fails is annotated, not omitted; the walk
// continues with its siblings.
func (p *Projector) Rows(ctx context.Context) ([]Row, error) {
	rows := make([]Row, 0, 16)
	for _, rootID := range p.cache.Roots() {
		var err error
		rows, err = p.walk(ctx, rootID, 0, rows)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// RowsUnder projects the visible subtree below one root id.
func (p *Projector) RowsUnder(ctx context.Context, rootID string) ([]Row, error) {
	return p.walk(ctx, rootID, 0, nil)
}

func (p *Projector) walk(ctx context.Context, id string, depth int, rows []Row) ([]Row, error) {
	n, err := p.cache.GetNode(id)
	if err != nil {
		// Expansion state may reference ids from an earlier pause; skip.
		return rows, nil
	}

	row := p.rowFor(n, depth)
	if !row.Expanded || !n.HasChildren() {
		return append(rows, row), nil
	}

	// The single suspension point: an expanded, unfetched node.
	if err := p.cache.EnsureFetched(ctx, id); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rows, ctxErr
		}
		// Annotate the row for display and stop descending here. Stale
		// references resolve themselves on the next pause; other failures
		// leave the node retryable.
		row.FetchErr = fetchErrText(err)
		return append(rows, row), nil
	}

	n, err = p.cache.GetNode(id)
	if err != nil {
		return append(rows, row), nil
	}
	row.Fetched = n.Fetched
	rows = append(rows, row)

	for _, childID := range n.Children {
		rows, err = p.walk(ctx, childID, depth+1, rows)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Items lists the children of parentID for a lazy tree-widget host.
// parentID "" lists the scope roots. A collapsed parent yields an empty
// list without any resolver traffic: visibility, not existence, drives
// fetching.
func (p *Projector) Items(ctx context.Context, parentID string) ([]Item, error) {
	if parentID == "" {
		return p.rootItems(), nil
	}

	n, err := p.cache.GetNode(parentID)
	if err != nil {
		return nil, err
	}
	if !p.exp.IsExpanded(parentID) || !n.HasChildren() {
		return []Item{}, nil
	}

	if err := p.cache.EnsureFetched(ctx, parentID); err != nil {
		return nil, err
	}

	childIDs, err := p.cache.ListChildren(parentID)
	if err != nil {
		return nil, err
	}
	gen := p.cache.Generation()
	items := make([]Item, 0, len(childIDs))
	for _, id := range childIDs {
		child, err := p.cache.GetNode(id)
		if err != nil {
			continue
		}
		items = append(items, Item{
			ID:          id,
			Label:       child.Name,
			Value:       p.previews.Render(gen, id, child.Value),
			HasChildren: child.HasChildren(),
		})
	}
	return items, nil
}

func (p *Projector) rootItems() []Item {
	ids := p.cache.Roots()
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		n, err := p.cache.GetNode(id)
		if err != nil {
			continue
		}
		items = append(items, Item{
			ID:          id,
			Label:       n.Name,
			HasChildren: n.HasChildren(),
		})
	}
	return items
}

func (p *Projector) rowFor(n *Node, depth int) Row {
	return Row{
		ID:          n.ID,
		Name:        n.Name,
		Value:       p.previews.Render(p.cache.Generation(), n.ID, n.Value),
		TypeName:    n.TypeName,
		Depth:       depth,
		HasChildren: n.HasChildren(),
		Expanded:    p.exp.IsExpanded(n.ID),
		Fetched:     n.Fetched,
		FetchErr:    n.FetchErr,
	}
}

func fetchErrText(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Err.Error()
	}
	return err.Error()
}
