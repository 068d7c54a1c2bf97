package vartree

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a node id that does not exist in the current pause.
var ErrNotFound = errors.New("node not found")

// ErrStaleReference reports that a variable reference crossed a pause
// boundary. Always recoverable: drop the cached subtree, retry on the next
// pause. Never retry the same reference.
var ErrStaleReference = errors.New("stale variable reference")

// ErrIdentityCollision reports two distinct sibling descriptors mapping to
// one node id. Internal-consistency violation; the fetch that produced it
// is rejected wholesale.
var ErrIdentityCollision = errors.New("node identity collision")

// FetchError wraps a resolver failure for one node. The node stays
// unfetched and remains expandable so the caller can retry.
type FetchError struct {
	NodeID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch children of %s: %v", e.NodeID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
