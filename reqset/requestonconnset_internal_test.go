package reqset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sabouaram/nodelink/addrport"
)

func TestMapSetAddGetRemove(t *testing.T) {
	s := newMapSet()
	addr, _ := addrport.New("10.0.0.1", 1)
	roc := &RequestOnConn{addr: addr}

	s.Add(roc)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get(addr)
	assert.True(t, ok)
	assert.Same(t, roc, got)

	s.Remove(addr)
	assert.Equal(t, 0, s.Len())
}

func TestListSetAllPreservesOrder(t *testing.T) {
	a1, _ := addrport.New("10.0.0.1", 1)
	a2, _ := addrport.New("10.0.0.2", 1)
	s := newListSet([]*RequestOnConn{{addr: a1}, {addr: a2}})

	all := s.All()
	assert.Len(t, all, 2)
	assert.Equal(t, a1, all[0].Addr())
	assert.Equal(t, a2, all[1].Addr())
}

func TestSingleSetIgnoresAddRemove(t *testing.T) {
	addr, _ := addrport.New("10.0.0.1", 1)
	roc := &RequestOnConn{addr: addr}
	s := newSingleSet(roc)

	other, _ := addrport.New("10.0.0.2", 1)
	s.Add(&RequestOnConn{addr: other})
	assert.Equal(t, 1, s.Len())

	s.Remove(addr)
	assert.Equal(t, 1, s.Len())
}
