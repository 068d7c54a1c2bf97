package vartree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver fetches the ordered child descriptors for a variable reference.
// It is the only path to the debuggee; no caching lives behind it.
type Resolver interface {
	Variables(ctx context.Context, ref int) ([]RawVariable, error)
}

// Cache is the in-memory forest of scope/variable nodes for the currently
// active debuggee pause. It materializes subtrees on demand, memoizes them
// until the next pause boundary, and enforces at-most-one in-flight
// resolver call per node id.
type Cache struct {
	resolver Resolver
	group    singleflight.Group

	mu       sync.RWMutex
	nodes    map[string]*Node
	roots    []string
	gen      uint64
	pauseCtx context.Context
	cancel   context.CancelFunc
}

func NewCache(resolver Resolver) *Cache {
	// Before the first pause the cache is empty and every fetch context is
	// already expired.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return &Cache{
		resolver: resolver,
		nodes:    make(map[string]*Node),
		pauseCtx: ctx,
	}
}

// Generation returns the current pause generation. It advances on every
// stop and every resume; a fetch started under an older generation never
// commits.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// BeginPause starts a new pause generation: prior node records are
// discarded (their variable references died with the previous pause),
// outstanding fetches are cancelled, and fresh unfetched scope roots are
// seeded. Returns the new generation.
func (c *Cache) BeginPause(scopes []RawScope) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceGenerationLocked()
	c.nodes = make(map[string]*Node, len(scopes))
	c.roots = c.roots[:0]

	for _, s := range scopes {
		id := ScopeID(s.Name)
		if _, dup := c.nodes[id]; dup {
			return c.gen, fmt.Errorf("%w: scope %q listed twice", ErrIdentityCollision, s.Name)
		}
		c.nodes[id] = &Node{
			ID:   id,
			Name: s.Name,
			Ref:  s.Ref,
			Kind: KindScope,
		}
		c.roots = append(c.roots, id)
	}
	return c.gen, nil
}

// Resume marks the debuggee as running again. All node records are dropped
// and in-flight fetches for the superseded pause resolve with
// ErrStaleReference instead of being left pending.
func (c *Cache) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceGenerationLocked()
	c.nodes = make(map[string]*Node)
	c.roots = nil
}

func (c *Cache) advanceGenerationLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.pauseCtx, c.cancel = context.WithCancel(context.Background())
}

// Roots returns the scope root ids for the current pause, in frame order.
func (c *Cache) Roots() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.roots...)
}

// GetNode returns a snapshot of the node record for id.
func (c *Cache) GetNode(id string) (*Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.clone(), nil
}

// Contains reports whether id currently exists in the cache.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodes[id]
	return ok
}

// ListChildren returns the ordered child ids of a fetched node. For an
// unfetched node it returns nil: unknown is not the same as empty.
func (c *Cache) ListChildren(id string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !n.Fetched {
		return nil, nil
	}
	return append([]string(nil), n.Children...), nil
}

// EnsureFetched materializes the children of id. Already-fetched and
// terminal (Ref==0) nodes return immediately. Concurrent callers for the
// same id within one pause share a single resolver round trip; the caller's
// ctx only abandons the wait, it never cancels the shared fetch (the pause
// context does that on resume).
func (c *Cache) EnsureFetched(ctx context.Context, id string) error {
	c.mu.RLock()
	n, ok := c.nodes[id]
	if !ok {
		c.mu.RUnlock()
		return ErrNotFound
	}
	if n.Fetched || n.Ref == 0 {
		c.mu.RUnlock()
		return nil
	}
	gen := c.gen
	ref := n.Ref
	pauseCtx := c.pauseCtx
	c.mu.RUnlock()

	key := flightKey(gen, id)
	ch := c.group.DoChan(key, func() (any, error) {
		return nil, c.fetch(pauseCtx, gen, id, ref)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func flightKey(gen uint64, id string) string {
	return fmt.Sprintf("%d/%s", gen, id)
}

// fetch performs one resolver round trip and commits the result if the
// pause generation is still current.
func (c *Cache) fetch(ctx context.Context, gen uint64, id string, ref int) error {
	raw, err := c.resolver.Variables(ctx, ref)
	if err != nil {
		return c.recordFetchFailure(gen, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// The debuggee moved on while the fetch was in flight. The result
		// describes a pause that no longer exists.
		return ErrStaleReference
	}
	n, ok := c.nodes[id]
	if !ok {
		return ErrStaleReference
	}

	children := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, rv := range raw {
		cid := ChildID(id, rv.Name)
		if _, dup := seen[cid]; dup {
			return fmt.Errorf("%w: %s", ErrIdentityCollision, cid)
		}
		seen[cid] = struct{}{}
		c.nodes[cid] = &Node{
			ID:       cid,
			Name:     rv.Name,
			Value:    rv.Value,
			TypeName: rv.Type,
			Ref:      rv.Ref,
			Kind:     KindVariable,
		}
		children = append(children, cid)
	}
	n.Fetched = true
	n.FetchErr = ""
	n.Children = children
	return nil
}

func (c *Cache) recordFetchFailure(gen uint64, id string, err error) error {
	stale := isStale(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrStaleReference
	}
	if stale {
		// The reference died mid-pause (or the resume cancelled us).
		// Invalidate the fetched subtree; the node becomes fetchable again
		// on the next pause.
		c.invalidateSubtreeLocked(id)
		return ErrStaleReference
	}
	if n, ok := c.nodes[id]; ok {
		n.FetchErr = err.Error()
	}
	return &FetchError{NodeID: id, Err: err}
}

func isStale(err error) bool {
	if err == nil {
		return false
	}
	// The pause context is the only canceller of shared fetches, so a
	// cancellation is a resume boundary by construction.
	return errors.Is(err, ErrStaleReference) || errors.Is(err, context.Canceled)
}

// Invalidate evicts the fetched subtree below id, resetting the node to
// unfetched. Descendant records are removed so a later commit for one of
// them cannot resurrect stale data.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateSubtreeLocked(id)
}

func (c *Cache) invalidateSubtreeLocked(id string) {
	n, ok := c.nodes[id]
	if !ok {
		return
	}
	var drop func(childID string)
	drop = func(childID string) {
		child, ok := c.nodes[childID]
		if !ok {
			return
		}
		for _, gc := range child.Children {
			drop(gc)
		}
		delete(c.nodes, childID)
	}
	for _, childID := range n.Children {
		drop(childID)
	}
	n.Fetched = false
	n.Children = nil
	n.FetchErr = ""
}

// FindChild resolves a display name against the fetched children of
// parentID. parentID "" resolves against the scope roots.
func (c *Cache) FindChild(parentID, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if parentID == "" {
		want := ScopeID(name)
		for _, id := range c.roots {
			if id == want {
				return id, true
			}
		}
		return "", false
	}

	n, ok := c.nodes[parentID]
	if !ok || !n.Fetched {
		return "", false
	}
	want := ChildID(parentID, name)
	for _, id := range n.Children {
		if id == want {
			return id, true
		}
	}
	return "", false
}
