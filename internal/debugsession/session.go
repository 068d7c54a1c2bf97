// Package debugsession wires the DAP client, tree cache, expansion state,
// projector and breadcrumb navigator into one session-scoped object with a
// lifecycle tied to the debug connection. Nothing here is process-global;
// two sessions never share state.
package debugsession

import (
	"context"
	"log/slog"

	"github.com/google/go-dap"

	"github.com/agentic-research/scopetree/internal/breadcrumb"
	"github.com/agentic-research/scopetree/internal/dapwire"
	"github.com/agentic-research/scopetree/internal/vartree"
)

// Session owns the variable-tree state for one debug connection.
type Session struct {
	log    *slog.Logger
	client *dapwire.Client
	cache  *vartree.Cache
	exp    *vartree.ExpansionState
	proj   *vartree.Projector
	nav    *breadcrumb.Navigator

	stopCh chan struct{}
}

func New(client *dapwire.Client, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	cache := vartree.NewCache(client)
	exp := vartree.NewExpansionState()
	proj := vartree.NewProjector(cache, exp)
	return &Session{
		log:    log,
		client: client,
		cache:  cache,
		exp:    exp,
		proj:   proj,
		nav:    breadcrumb.NewNavigator(cache, proj),
		stopCh: make(chan struct{}, 1),
	}
}

// Run consumes adapter events until ctx is cancelled or the connection
// drops. It must run for the tree to track pause/resume boundaries.
func (s *Session) Run(ctx context.Context) {
	events, unsubscribe := s.client.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, msg)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, msg dap.EventMessage) {
	switch ev := msg.(type) {
	case *dap.StoppedEvent:
		s.onStopped(ctx, ev.Body.ThreadId)
	case *dap.ContinuedEvent:
		s.log.Debug("debuggee resumed", "thread", ev.Body.ThreadId)
		s.cache.Resume()
	case *dap.TerminatedEvent:
		s.log.Info("debug session terminated")
		s.cache.Resume()
	case *dap.ExitedEvent:
		s.log.Info("debuggee exited", "code", ev.Body.ExitCode)
		s.cache.Resume()
	}
}

// onStopped walks threads → top stack frame → scopes and seeds a fresh
// pause generation. Every variable reference from before this point is
// dead; only the path-derived ids survive.
func (s *Session) onStopped(ctx context.Context, threadID int) {
	if threadID == 0 {
		threads, err := s.client.Threads(ctx)
		if err != nil || len(threads) == 0 {
			s.log.Warn("stopped event without usable thread", "err", err)
			return
		}
		threadID = threads[0].Id
	}

	frames, err := s.client.StackTrace(ctx, threadID)
	if err != nil || len(frames) == 0 {
		s.log.Warn("no stack frames at stop", "thread", threadID, "err", err)
		return
	}

	scopes, err := s.client.Scopes(ctx, frames[0].Id)
	if err != nil {
		s.log.Warn("scopes fetch failed at stop", "frame", frames[0].Id, "err", err)
		return
	}

	gen, err := s.cache.BeginPause(scopes)
	if err != nil {
		s.log.Error("seeding pause failed", "err", err)
		return
	}
	s.log.Debug("pause seeded", "generation", gen, "scopes", len(scopes))

	s.pruneStaleExpansion()

	select {
	case s.stopCh <- struct{}{}:
	default:
	}
}

// pruneStaleExpansion drops expansion intent whose scope root vanished
// (e.g. a closure scope that no longer exists at this frame). Intent under
// still-present scopes is kept even though those subtrees are unfetched:
// ids are path-derived and will match again once the user drills back in.
func (s *Session) pruneStaleExpansion() {
	s.exp.Prune(func(id string) bool {
		names := vartree.SegmentNames(id)
		if len(names) == 0 {
			return false
		}
		return s.cache.Contains(vartree.ScopeID(names[0]))
	})
}

// WaitForStop blocks until the next pause is seeded or ctx expires.
func (s *Session) WaitForStop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return nil
	}
}

// Items is the host lazy tree-source contract (parent id "" lists the
// scope roots; collapsed parents yield no children and no fetch).
func (s *Session) Items(ctx context.Context, parentID string) ([]vartree.Item, error) {
	return s.proj.Items(ctx, parentID)
}

// Rows projects the full visible tree.
func (s *Session) Rows(ctx context.Context) ([]vartree.Row, error) {
	return s.proj.Rows(ctx)
}

// ToggleExpand flips expansion intent for a node id and returns the new
// state. Purely a state change; the fetch happens on the next projection.
func (s *Session) ToggleExpand(id string) bool {
	return s.exp.Toggle(id)
}

// SetExpanded records explicit expansion intent for a node id.
func (s *Session) SetExpanded(id string, expanded bool) {
	s.exp.SetExpanded(id, expanded)
}

// IsExpanded reports expansion intent for a node id.
func (s *Session) IsExpanded(id string) bool {
	return s.exp.IsExpanded(id)
}

// Navigator returns the session's breadcrumb navigator.
func (s *Session) Navigator() *breadcrumb.Navigator {
	return s.nav
}

// Cache exposes the tree cache for direct inspection.
func (s *Session) Cache() *vartree.Cache {
	return s.cache
}

// Client returns the underlying DAP client.
func (s *Session) Client() *dapwire.Client {
	return s.client
}
