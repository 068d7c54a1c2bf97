package vartree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver serves canned child lists keyed by variablesReference and
// counts how many round trips each reference cost.
type fakeResolver struct {
	mu       sync.Mutex
	children map[int][]RawVariable
	errs     map[int]error
	calls    map[int]int
	gate     chan struct{} // when set, fetches block until closed (or ctx dies)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		children: make(map[int][]RawVariable),
		errs:     make(map[int]error),
		calls:    make(map[int]int),
	}
}

func (f *fakeResolver) Variables(ctx context.Context, ref int) ([]RawVariable, error) {
	f.mu.Lock()
	f.calls[ref]++
	gate := f.gate
	err := f.errs[ref]
	kids := f.children[ref]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate:
		}
	}
	if err != nil {
		return nil, err
	}
	return kids, nil
}

func (f *fakeResolver) callCount(ref int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func pausedCache(t *testing.T, r Resolver, scopes ...RawScope) *Cache {
	t.Helper()
	c := NewCache(r)
	_, err := c.BeginPause(scopes)
	require.NoError(t, err)
	return c
}

func TestCache_FetchMemoizedWithinPause(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{
		{Name: "process", Value: "", Type: "object", Ref: 101},
		{Name: "version", Value: `"1.2.3"`, Type: "string", Ref: 0},
	}
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	ctx := context.Background()
	root := ScopeID("Global")
	require.NoError(t, c.EnsureFetched(ctx, root))
	require.NoError(t, c.EnsureFetched(ctx, root))
	require.NoError(t, c.EnsureFetched(ctx, root))
	assert.Equal(t, 1, r.callCount(100), "re-fetch of a cached node must not hit the resolver")

	kids, err := c.ListChildren(root)
	require.NoError(t, err)
	assert.Equal(t, []string{ChildID(root, "process"), ChildID(root, "version")}, kids)

	leaf, err := c.GetNode(ChildID(root, "version"))
	require.NoError(t, err)
	assert.False(t, leaf.HasChildren())
	assert.Equal(t, `"1.2.3"`, leaf.Value)
}

func TestCache_TerminalNodeNeverFetches(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "pid", Value: "4242", Ref: 0}}
	c := pausedCache(t, r, RawScope{Name: "Local", Ref: 100})

	ctx := context.Background()
	require.NoError(t, c.EnsureFetched(ctx, ScopeID("Local")))

	leaf := ChildID(ScopeID("Local"), "pid")
	require.NoError(t, c.EnsureFetched(ctx, leaf))
	kids, err := c.ListChildren(leaf)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.Equal(t, 1, r.totalCalls(), "a ref==0 node must not reach the resolver")
}

func TestCache_ConcurrentCallersShareOneRoundTrip(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "a", Ref: 0}}
	r.gate = make(chan struct{})
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	root := ScopeID("Global")
	const callers = 16
	var wg sync.WaitGroup
	var failures atomic.Int32
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if err := c.EnsureFetched(context.Background(), root); err != nil {
				failures.Add(1)
			}
		}()
	}
	close(r.gate)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, r.callCount(100), "concurrent expands must coalesce onto one resolver call")
}

func TestCache_CallerCtxAbandonsWaitWithoutKillingFetch(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "a", Ref: 0}}
	r.gate = make(chan struct{})
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})
	root := ScopeID("Global")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.EnsureFetched(ctx, root)
	require.ErrorIs(t, err, context.Canceled)

	// The shared fetch is still alive; releasing it commits the result.
	close(r.gate)
	require.NoError(t, c.EnsureFetched(context.Background(), root))
	assert.Equal(t, 1, r.callCount(100))
}

func TestCache_ResumeInvalidatesEverything(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "x", Ref: 0}}
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	root := ScopeID("Global")
	require.NoError(t, c.EnsureFetched(context.Background(), root))
	gen := c.Generation()

	c.Resume()
	assert.Greater(t, c.Generation(), gen)
	assert.Empty(t, c.Roots())
	assert.ErrorIs(t, c.EnsureFetched(context.Background(), root), ErrNotFound)

	// Next pause reseeds under a new reference; the resolver is consulted
	// again even for the same scope name.
	r.children[200] = []RawVariable{{Name: "y", Ref: 0}}
	_, err := c.BeginPause([]RawScope{{Name: "Global", Ref: 200}})
	require.NoError(t, err)
	require.NoError(t, c.EnsureFetched(context.Background(), root))
	assert.Equal(t, 1, r.callCount(200))
}

func TestCache_ResumeCancelsInFlightFetch(t *testing.T) {
	r := newFakeResolver()
	r.gate = make(chan struct{})
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})
	root := ScopeID("Global")

	errCh := make(chan error, 1)
	go func() { errCh <- c.EnsureFetched(context.Background(), root) }()

	// Wait for the fetch to be in flight before resuming.
	for r.callCount(100) == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Resume()

	err := <-errCh
	require.ErrorIs(t, err, ErrStaleReference,
		"a fetch cut off by resume must surface as stale, not as a bare cancellation")
}

func TestCache_StaleResolverErrorInvalidatesSubtree(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "child", Ref: 101}}
	r.errs[101] = ErrStaleReference
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	root := ScopeID("Global")
	require.NoError(t, c.EnsureFetched(context.Background(), root))
	child := ChildID(root, "child")
	require.ErrorIs(t, c.EnsureFetched(context.Background(), child), ErrStaleReference)

	// The child record survives but is unfetched again.
	n, err := c.GetNode(child)
	require.NoError(t, err)
	assert.False(t, n.Fetched)
}

func TestCache_TransientFetchErrorIsRetryable(t *testing.T) {
	r := newFakeResolver()
	boom := errors.New("adapter hiccup")
	r.children[100] = []RawVariable{{Name: "a", Ref: 0}}
	r.errs[100] = boom
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})
	root := ScopeID("Global")

	err := c.EnsureFetched(context.Background(), root)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, root, fe.NodeID)
	assert.ErrorIs(t, err, boom)

	n, getErr := c.GetNode(root)
	require.NoError(t, getErr)
	assert.Equal(t, boom.Error(), n.FetchErr)
	assert.False(t, n.Fetched)

	// The failure is not memoized: clearing the fault lets a retry succeed.
	r.mu.Lock()
	delete(r.errs, 100)
	r.mu.Unlock()
	require.NoError(t, c.EnsureFetched(context.Background(), root))
	assert.Equal(t, 2, r.callCount(100))
	n, getErr = c.GetNode(root)
	require.NoError(t, getErr)
	assert.Empty(t, n.FetchErr)
}

func TestCache_DuplicateSiblingNamesCollide(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{
		{Name: "dup", Ref: 0},
		{Name: "dup", Ref: 0},
	}
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	err := c.EnsureFetched(context.Background(), ScopeID("Global"))
	require.ErrorIs(t, err, ErrIdentityCollision)

	// Nothing from the poisoned batch was committed.
	kids, lerr := c.ListChildren(ScopeID("Global"))
	require.NoError(t, lerr)
	assert.Nil(t, kids)
}

func TestCache_DuplicateScopeNamesCollide(t *testing.T) {
	c := NewCache(newFakeResolver())
	_, err := c.BeginPause([]RawScope{
		{Name: "Global", Ref: 100},
		{Name: "Global", Ref: 200},
	})
	require.ErrorIs(t, err, ErrIdentityCollision)
}

func TestCache_InvalidateDropsDescendantsOnly(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "process", Ref: 101}}
	r.children[101] = []RawVariable{{Name: "env", Ref: 102}, {Name: "pid", Ref: 0}}
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	ctx := context.Background()
	root := ScopeID("Global")
	process := ChildID(root, "process")
	require.NoError(t, c.EnsureFetched(ctx, root))
	require.NoError(t, c.EnsureFetched(ctx, process))

	c.Invalidate(process)

	assert.True(t, c.Contains(process))
	assert.False(t, c.Contains(ChildID(process, "env")))
	assert.False(t, c.Contains(ChildID(process, "pid")))

	kids, err := c.ListChildren(process)
	require.NoError(t, err)
	assert.Nil(t, kids, "invalidated node reports unknown children, not empty")

	// Re-expanding refetches.
	require.NoError(t, c.EnsureFetched(ctx, process))
	assert.Equal(t, 2, r.callCount(101))
}

func TestCache_FindChild(t *testing.T) {
	r := newFakeResolver()
	r.children[100] = []RawVariable{{Name: "process", Ref: 101}}
	c := pausedCache(t, r, RawScope{Name: "Global", Ref: 100})

	id, ok := c.FindChild("", "Global")
	require.True(t, ok)
	assert.Equal(t, ScopeID("Global"), id)

	_, ok = c.FindChild("", "Nope")
	assert.False(t, ok)

	// Unfetched parent cannot resolve names yet.
	_, ok = c.FindChild(id, "process")
	assert.False(t, ok)

	require.NoError(t, c.EnsureFetched(context.Background(), id))
	got, ok := c.FindChild(id, "process")
	require.True(t, ok)
	assert.Equal(t, ChildID(id, "process"), got)
}
