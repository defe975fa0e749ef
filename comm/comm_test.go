package comm

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelf(t *testing.T) {
	c := Self()
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())
	c.Barrier()
	assert.Equal(t, "x", c.Bcast(0, "x"))
}

func TestNewWorld_Ranks(t *testing.T) {
	members := NewWorld(3)
	require.Len(t, members, 3)
	for i, m := range members {
		assert.Equal(t, i, m.Rank())
		assert.Equal(t, 3, m.Size())
	}
	assert.Panics(t, func() { NewWorld(0) })
}

func TestBarrier_WaitsForAllRanks(t *testing.T) {
	var before atomic.Int32
	err := Run(4, func(c Communicator) error {
		before.Add(1)
		c.Barrier()
		if got := before.Load(); got != 4 {
			return errors.New("passed barrier early")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBcast_RepeatedRounds(t *testing.T) {
	err := Run(3, func(c Communicator) error {
		for round := range 50 {
			v := c.Bcast(round%3, c.Rank()*1000+round)
			if v.(int) != (round%3)*1000+round {
				return errors.New("unexpected broadcast value")
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRun_ReportsRank(t *testing.T) {
	boom := errors.New("boom")
	err := Run(2, func(c Communicator) error {
		if c.Rank() == 1 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "rank 1")
}

func TestBarrier_BlocksWhenRankMissing(t *testing.T) {
	members := NewWorld(2)
	done := make(chan struct{})
	go func() {
		members[0].Barrier()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("barrier completed with one rank missing")
	case <-time.After(50 * time.Millisecond):
	}

	members[1].Barrier()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("barrier did not release")
	}
}
