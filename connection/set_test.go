package connection_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/connection"
)

func TestConnectionSetStartDedups(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 8000)
	require.NoError(t, err)

	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil)
	defer set.StopAll()

	a := set.Start(addr)
	b := set.Start(addr)
	assert.Same(t, a, b)
	assert.Equal(t, 1, set.Len())
}

func TestConnectionSetPickRoundRobinEmpty(t *testing.T) {
	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil)
	defer set.StopAll()

	assert.Nil(t, set.PickRoundRobin())
}

func TestConnectionSetPickRoundRobinAfterConnect(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 8001)
	require.NoError(t, err)

	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil, connection.WithRNG(rand.New(rand.NewSource(42))))
	defer set.StopAll()

	set.Start(addr)

	waitFor(t, time.Second, func() bool {
		c, ok := set.Get(addr)
		return ok && c.Status() == connection.StatusConnected
	})

	picked := set.PickRoundRobin()
	require.NotNil(t, picked)
	assert.Equal(t, addr, picked.Addr())
}

func TestConnectionSetAscendDescendOrder(t *testing.T) {
	a1, _ := addrport.New("10.0.0.1", 1)
	a2, _ := addrport.New("10.0.0.2", 1)
	a3, _ := addrport.New("10.0.0.3", 1)

	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil)
	defer set.StopAll()

	set.Start(a2)
	set.Start(a1)
	set.Start(a3)

	var ascended []string
	set.Ascend(func(c *connection.Connection) bool {
		ascended = append(ascended, c.Addr().String())
		return true
	})
	assert.Equal(t, []string{a1.String(), a2.String(), a3.String()}, ascended)

	var descended []string
	set.Descend(func(c *connection.Connection) bool {
		descended = append(descended, c.Addr().String())
		return true
	})
	assert.Equal(t, []string{a3.String(), a2.String(), a1.String()}, descended)
}

// TestIterateRoundRobinFairness exercises testable property #10: over
// many iterations with every member Connected, each is visited first with
// relative frequency within 10% of 1/n.
func TestIterateRoundRobinFairness(t *testing.T) {
	const n = 4
	addrs := make([]addrport.AddrPort, n)
	for i := range addrs {
		a, err := addrport.New(fmt.Sprintf("10.1.0.%d", i+1), 9000)
		require.NoError(t, err)
		addrs[i] = a
	}

	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil, connection.WithRNG(rand.New(rand.NewSource(7))))
	defer set.StopAll()

	for _, a := range addrs {
		set.Start(a)
	}
	for _, a := range addrs {
		addr := a
		waitFor(t, time.Second, func() bool {
			c, ok := set.Get(addr)
			return ok && c.Status() == connection.StatusConnected
		})
	}

	const iterations = 4000
	counts := make(map[uint64]int, n)
	for i := 0; i < iterations; i++ {
		set.IterateRoundRobin(func(c *connection.Connection) int {
			counts[c.Addr().CmpID()]++
			return 1
		})
	}

	expected := float64(iterations) / float64(n)
	for _, a := range addrs {
		got := float64(counts[a.CmpID()])
		assert.InDeltaf(t, expected, got, expected*0.1, "addr %s visited first %v times, want ~%v", a.String(), got, expected)
	}
}

func TestConnectionSetStop(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 8002)
	require.NoError(t, err)

	set := connection.NewSet(newPipeDialer(0), &recordingRouter{}, nil)
	defer set.StopAll()

	set.Start(addr)
	waitFor(t, time.Second, func() bool {
		c, ok := set.Get(addr)
		return ok && c.Status() == connection.StatusConnected
	})

	set.Stop(addr)
	_, ok := set.Get(addr)
	assert.False(t, ok)
}
