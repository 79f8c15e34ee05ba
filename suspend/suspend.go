// Package suspend implements SuspendableRequest, a helper state machine
// layered on top of a request's event dispatcher for handlers that need
// to pause and resume their receive loop in response to an externally
// requested state change (e.g. a user pausing a long-running stream).
package suspend

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sabouaram/nodelink/atomicx"
	"github.com/sabouaram/nodelink/reqset"
)

// Dispatcher is the slice of reqset.EventDispatcher this package drives a
// handler against. Defined here, at point of use, so tests can supply a
// lightweight fake instead of a fully wired connection. WaitForReconnect
// matches reqset.EventDispatcherAllNodes, letting StateEstablishingConnection
// ride out a dropped connection instead of exiting.
type Dispatcher interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(body []byte) error
	WaitForReconnect(ctx context.Context) (int32, error)
}

// State names the five stages a SuspendableRequest handler moves through.
type State int

const (
	StateEstablishingConnection State = iota
	StateInitialising
	StateReceiving
	StateRequestingStateChange
	StateExit
)

func (s State) String() string {
	switch s {
	case StateEstablishingConnection:
		return "establishing_connection"
	case StateInitialising:
		return "initialising"
	case StateReceiving:
		return "receiving"
	case StateRequestingStateChange:
		return "requesting_state_change"
	case StateExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Desired state values a controller can request through SetDesiredState.
// Handlers are free to use their own numeric codes for anything besides
// the run/suspend/stop lifecycle; only DesiredStopped carries special
// meaning to StateEstablishingConnection's reconnect loop.
const (
	DesiredNone int32 = iota
	DesiredRunning
	DesiredSuspended
	DesiredStopped
)

// resumeStateChange is the code ResumeSuspendedHandlers is called with to
// wake a handler parked in StateReceiving so it can observe a pending
// SetDesiredState and move to StateRequestingStateChange.
const resumeStateChange int32 = 1

// SharedWorking is the mutable control surface shared between a
// SuspendableRequest handler goroutine (or, for a multi-node request, all
// of its per-connection handler goroutines) and whatever external code
// wants to change its desired state (e.g. Suspend/Resume on the
// controller). All access goes through its atomic/exported methods;
// there is no mutex, matching the lock-free discipline used elsewhere in
// this module.
type SharedWorking struct {
	desiredState     atomic.Int32
	waitingForAck    atomic.Int32
	initialisedCount atomic.Int32
	totalMembers     atomic.Int32
	firstInit        atomicx.Value[bool]
	onFirstInit      atomicx.Value[func()]
}

// NewSharedWorking returns a SharedWorking for a single-node request, with
// no state change pending and its desired state set to DesiredRunning.
// Multi-node and all-nodes callers must follow up with SetTotalMembers so
// FirstInitialisation's barrier waits for every connection.
func NewSharedWorking() *SharedWorking {
	w := &SharedWorking{}
	w.totalMembers.Store(1)
	w.desiredState.Store(DesiredRunning)
	return w
}

// SetTotalMembers records how many RequestOnConn instances this request
// was started with, so markInitialised only fires the first-initialisation
// callback once every one of them has initialised.
func (w *SharedWorking) SetTotalMembers(n int32) {
	if n < 1 {
		n = 1
	}
	w.totalMembers.Store(n)
}

// SetOnFirstInitialisation registers fn to run exactly once, when the last
// unready connection finishes InitialiseRequest.
func (w *SharedWorking) SetOnFirstInitialisation(fn func()) {
	w.onFirstInit.Store(fn)
}

// SetDesiredState requests a transition to newState. It fails (returns
// false) if a previous request is still awaiting acknowledgement by the
// handler loop, preventing desired-state requests from piling up faster
// than the handler can act on them. If any handler goroutine has already
// completed InitialiseRequest, begin is invoked so the caller can resume
// every suspended handler (see reqset.RequestController.ResumeSuspendedHandlers)
// and let each observe the change on its own next pass through
// StateReceiving; otherwise, with no handler yet running to observe it,
// changed is invoked immediately and the pending flag is cleared on the
// caller's behalf.
func (w *SharedWorking) SetDesiredState(newState int32, begin, changed func()) bool {
	if w.waitingForAck.Load() > 0 {
		return false
	}
	w.desiredState.Store(newState)
	w.waitingForAck.Add(1)

	if w.initialisedCount.Load() > 0 {
		if begin != nil {
			begin()
		}
		return true
	}

	if changed != nil {
		changed()
	}
	w.waitingForAck.Add(-1)
	return true
}

// DesiredState returns the most recently requested state.
func (w *SharedWorking) DesiredState() int32 { return w.desiredState.Load() }

// HasPendingStateChange reports whether a SetDesiredState call is still
// awaiting acknowledgement.
func (w *SharedWorking) HasPendingStateChange() bool { return w.waitingForAck.Load() > 0 }

// ackStateChange clears the pending-acknowledgement flag, called by the
// handler loop once RequestStateChange has run.
func (w *SharedWorking) ackStateChange() { w.waitingForAck.Add(-1) }

// InitialisedCount returns how many RequestOnConn instances have run
// InitialiseRequest to completion for this SharedWorking.
func (w *SharedWorking) InitialisedCount() int32 { return w.initialisedCount.Load() }

// FirstInitialisation reports whether the first-initialisation barrier
// has not yet fired: true for every connection's InitialiseRequest call
// until the last unready connection completes its own, at which point it
// flips to false for good.
func (w *SharedWorking) FirstInitialisation() bool { return !w.firstInit.Load() }

// markInitialised records that one more connection finished
// InitialiseRequest. It returns true exactly once, when this was the last
// unready connection to do so (initialisedCount reaching totalMembers),
// which is also when firstInit flips.
func (w *SharedWorking) markInitialised() bool {
	n := w.initialisedCount.Add(1)
	total := w.totalMembers.Load()
	if total < 1 {
		total = 1
	}
	if n == total && !w.firstInit.Load() {
		w.firstInit.Store(true)
		return true
	}
	return false
}

// BeginResume adapts a RequestController's ResumeSuspendedHandlers into the
// begin callback SetDesiredState expects, waking every suspended handler
// of the request with the predetermined state-change resume code.
func BeginResume(ctrl *reqset.RequestController) func() {
	return func() { ctrl.ResumeSuspendedHandlers(resumeStateChange) }
}

// Handlers are the application callbacks invoked at each stage of the
// state machine. EstablishConnection and InitialiseRequest run once per
// Run invocation; Run never returns to them, and a receive error ends it.
// Receive and RequestStateChange run repeatedly until one returns
// exit=true.
type Handlers struct {
	EstablishConnection func(ctx context.Context, disp Dispatcher) error
	InitialiseRequest   func(ctx context.Context, disp Dispatcher, first bool) error
	Receive             func(ctx context.Context, disp Dispatcher, body []byte) (exit bool, err error)
	RequestStateChange  func(ctx context.Context, disp Dispatcher, desired int32) (exit bool, err error)
}

// HandlerFunc is the shape of a suspend-driven handler.
// *reqset.EventDispatcherAllNodes satisfies Dispatcher, so AsRequestHandler
// adapts a HandlerFunc for use wherever reqset wants a reqset.HandlerFunc
// by wrapping the EventDispatcher it is given with AllNodes.
type HandlerFunc func(ctx context.Context, disp Dispatcher) error

// AsRequestHandler adapts h for use as a reqset.HandlerFunc, for passing
// Run's result directly to StartSingleNode/StartMultiNode/StartAllNodes.
// It drives h against disp.AllNodes(), since StateEstablishingConnection
// needs WaitForReconnect regardless of how the request was started — any
// EventDispatcher is bound to a Connection, so the view is always
// meaningful.
func AsRequestHandler(h HandlerFunc) reqset.HandlerFunc {
	return func(ctx context.Context, disp *reqset.EventDispatcher) error {
		return h(ctx, disp.AllNodes())
	}
}

// AsAllNodesHandler is an alias for AsRequestHandler, named for call sites
// that start the request with StartAllNodes or grow it with
// StartOnNewConnection, where the WaitForReconnect behaviour is most
// often load-bearing.
func AsAllNodesHandler(h HandlerFunc) reqset.HandlerFunc {
	return AsRequestHandler(h)
}

// Run builds a HandlerFunc that drives Handlers through the
// EstablishingConnection -> Initialising -> Receiving <-> RequestingStateChange -> Exit
// state machine, checking working for a pending SetDesiredState before
// every Receive.
func Run(working *SharedWorking, h Handlers) HandlerFunc {
	return func(ctx context.Context, disp Dispatcher) error {
		state := StateEstablishingConnection

		for {
			switch state {
			case StateEstablishingConnection:
				if h.EstablishConnection != nil {
					if err := h.EstablishConnection(ctx, disp); err != nil {
						return err
					}
				}

				for {
					_, err := disp.WaitForReconnect(ctx)
					if err == nil {
						state = StateInitialising
						break
					}
					var resumed *reqset.ResumedError
					if errors.As(err, &resumed) {
						if working.DesiredState() == DesiredStopped {
							state = StateExit
							break
						}
						continue
					}
					return err
				}

			case StateInitialising:
				first := working.FirstInitialisation()
				if h.InitialiseRequest != nil {
					if err := h.InitialiseRequest(ctx, disp, first); err != nil {
						return err
					}
				}
				if working.markInitialised() {
					if fn := working.onFirstInit.Load(); fn != nil {
						fn()
					}
				}
				state = StateReceiving

			case StateReceiving:
				if working.HasPendingStateChange() {
					state = StateRequestingStateChange
					continue
				}

				body, err := disp.Receive(ctx)
				if err != nil {
					var resumed *reqset.ResumedError
					if errors.As(err, &resumed) {
						if working.HasPendingStateChange() {
							state = StateRequestingStateChange
							continue
						}
						continue
					}
					return err
				}
				if h.Receive == nil {
					continue
				}
				exit, err := h.Receive(ctx, disp, body)
				if err != nil {
					return err
				}
				if exit {
					state = StateExit
				}

			case StateRequestingStateChange:
				desired := working.DesiredState()
				var exit bool
				var err error
				if h.RequestStateChange != nil {
					exit, err = h.RequestStateChange(ctx, disp, desired)
				}
				working.ackStateChange()
				if err != nil {
					return err
				}
				if exit || desired == DesiredStopped {
					state = StateExit
				} else {
					state = StateReceiving
				}

			case StateExit:
				return nil
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
