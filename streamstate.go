package connect

import "go.uber.org/atomic"

// streamState tracks the half-close bits of one stream's state machine:
//
//	OPEN -> HALF_CLOSED_LOCAL (after sendClose)
//	OPEN -> HALF_CLOSED_REMOTE (after receiving Complete)
//	(either) -> CLOSED (both halves closed, or receiveClose/cancel)
//
// Transitions are monotonic: one atomic bit per half-close plus one for
// final termination, since the state machine distinguishes local and
// remote half-closes explicitly rather than folding them into one bool.
type streamState struct {
	localClosed  atomic.Bool
	remoteClosed atomic.Bool
	terminated   atomic.Bool // Complete has been emitted exactly once
}

func newStreamState() *streamState {
	return &streamState{}
}

// closeLocal transitions to HALF_CLOSED_LOCAL. Returns false if the local
// half was already closed (send after close is a caller error, reported as
// CodeFailedPrecondition by the caller).
func (s *streamState) closeLocal() bool {
	return !s.localClosed.Swap(true)
}

// closeRemote transitions to HALF_CLOSED_REMOTE.
func (s *streamState) closeRemote() bool {
	return !s.remoteClosed.Swap(true)
}

// isLocalClosed reports whether the send half has closed.
func (s *streamState) isLocalClosed() bool {
	return s.localClosed.Load()
}

// isClosed reports whether both halves have closed.
func (s *streamState) isClosed() bool {
	return s.localClosed.Load() && s.remoteClosed.Load()
}

// markTerminated reports whether this call is the first to mark the stream
// terminated; subsequent calls return false so Complete is emitted exactly
// once.
func (s *streamState) markTerminated() bool {
	return !s.terminated.Swap(true)
}

// isTerminated reports whether Complete has already been emitted.
func (s *streamState) isTerminated() bool {
	return s.terminated.Load()
}
