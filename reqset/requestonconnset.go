package reqset

import (
	"sync"

	"github.com/sabouaram/nodelink/addrport"
)

// rocMode tags which backing storage a RequestOnConnSet uses.
type rocMode int

const (
	modeSingle rocMode = iota
	modeList
	modeMap
)

// RequestOnConnSet holds every RequestOnConn belonging to one Request.
// StartSingleNode and StartRoundRobin produce a modeSingle set (exactly
// one member); StartMultiNode produces a modeList set (a list in
// insertion order, which StartOnNewConnection can extend); StartAllNodes
// produces a modeMap set keyed by
// address, so connections that join later (new nodes registered on the
// ConnectionSet) can be added to a running all-nodes request.
type RequestOnConnSet struct {
	mode rocMode

	mu   sync.RWMutex
	list []*RequestOnConn
	byAddr map[uint64]*RequestOnConn
}

func newSingleSet(r *RequestOnConn) *RequestOnConnSet {
	return &RequestOnConnSet{mode: modeSingle, list: []*RequestOnConn{r}}
}

func newListSet(rs []*RequestOnConn) *RequestOnConnSet {
	return &RequestOnConnSet{mode: modeList, list: rs}
}

func newMapSet() *RequestOnConnSet {
	return &RequestOnConnSet{mode: modeMap, byAddr: make(map[uint64]*RequestOnConn)}
}

// Add inserts r into the set: keyed by its connection's address for a
// modeMap set (all-nodes), appended to the member list for a modeList set
// (multi-node, growing via EventDispatcher.StartOnNewConnection). It is a
// no-op for modeSingle sets, which are fixed at exactly one member.
func (s *RequestOnConnSet) Add(r *RequestOnConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case modeMap:
		s.byAddr[r.Addr().CmpID()] = r
	case modeList:
		s.list = append(s.list, r)
	}
}

// Remove deletes the RequestOnConn for addr from a modeMap set.
func (s *RequestOnConnSet) Remove(addr addrport.AddrPort) {
	if s.mode != modeMap {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAddr, addr.CmpID())
}

// Get returns the RequestOnConn for addr in a modeMap set.
func (s *RequestOnConnSet) Get(addr addrport.AddrPort) (*RequestOnConn, bool) {
	if s.mode != modeMap {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byAddr[addr.CmpID()]
	return r, ok
}

// All returns every RequestOnConn currently in the set, in no particular
// order for modeMap sets and in insertion order otherwise.
func (s *RequestOnConnSet) All() []*RequestOnConn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mode != modeMap {
		out := make([]*RequestOnConn, len(s.list))
		copy(out, s.list)
		return out
	}

	out := make([]*RequestOnConn, 0, len(s.byAddr))
	for _, r := range s.byAddr {
		out = append(out, r)
	}
	return out
}

// Len returns the number of members currently in the set.
func (s *RequestOnConnSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode != modeMap {
		return len(s.list)
	}
	return len(s.byAddr)
}
