package verify

import (
	"sync/atomic"

	"doorman/pkg/domain"
)

// resolutionKind distinguishes how a pending verification was resolved.
type resolutionKind int

const (
	// resolutionPass: a qualifying response arrived or an admin forced a
	// pass. Msg carries the anchor message when there is one.
	resolutionPass resolutionKind = iota
	// resolutionFail: an admin forced a fail. Downstream handling is
	// identical to a timer expiry.
	resolutionFail
	// resolutionSupersede: a newer join for the same user replaced this
	// challenge. The loser cleans up its challenge message and stops.
	resolutionSupersede
)

type resolution struct {
	kind resolutionKind
	msg  domain.MessageID
}

// waiter is the single-use resolution capability for one pending
// verification. The first claim wins; every later resolve, and the timer
// branch when it loses, is a no-op. The channel is buffered so a successful
// claim can always deliver without blocking.
type waiter struct {
	ch      chan resolution
	claimed atomic.Bool
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan resolution, 1)}
}

// resolve delivers res if the waiter is unclaimed. Returns false when the
// outcome was already decided.
func (w *waiter) resolve(res resolution) bool {
	if !w.claimed.CompareAndSwap(false, true) {
		return false
	}
	w.ch <- res
	return true
}

// claim is the timer branch's attempt to decide the outcome. When it fails,
// a resolver won the race and its resolution is in (or about to be in) the
// channel.
func (w *waiter) claim() bool {
	return w.claimed.CompareAndSwap(false, true)
}
