package reqset

import "github.com/sabouaram/nodelink/connection"

// RoundRobinIterator lets a round-robin handler retry its operation
// against each Connected candidate of a ConnectionSet in turn, instead of
// giving up after the single connection StartRoundRobin picked to begin
// with. It shares the same shuffled visiting order as
// connection.ConnectionSet.IterateRoundRobin.
type RoundRobinIterator struct {
	roc *RequestOnConn
	set *connection.ConnectionSet
}

// Each rebinds the iterator's RequestOnConn to every Connected candidate
// in turn (via RequestOnConn.useNode) and invokes fn with the resulting
// EventDispatcher. fn returning true stops iteration, treating that
// candidate as having satisfied the request; returning false tries the
// next candidate. Each returns once fn returns true or every candidate
// has been tried.
func (it *RoundRobinIterator) Each(fn func(disp *EventDispatcher) bool) {
	it.set.IterateRoundRobin(func(conn *connection.Connection) int {
		it.roc.useNode(conn)
		if fn(it.roc.disp) {
			return 1
		}
		return 0
	})
}
