// Package comm provides the process-group substrate used for collective
// I/O. A Communicator identifies one process of a fixed-size group; the
// in-process implementation runs every rank as a goroutine.
package comm

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Communicator is one member of a process group. Barrier and Bcast are
// collective: they return only after every rank of the group made the
// matching call.
type Communicator interface {
	Rank() int
	Size() int
	Barrier()
	// Bcast returns root's v on every rank.
	Bcast(root int, v any) any
}

// Info carries implementation hints passed with the communicator when a
// file is opened for parallel access.
type Info map[string]string

// Self returns a group containing only the calling process.
func Self() Communicator {
	return self{}
}

type self struct{}

func (self) Rank() int { return 0 }
func (self) Size() int { return 1 }
func (self) Barrier() {}
func (self) Bcast(_ int, v any) any { return v }

// world is the state shared by the members of an in-process group.
type world struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	arrived int
	gen     uint64
	value   any
}

// NewWorld returns the n members of a new in-process group, indexed by rank.
func NewWorld(n int) []Communicator {
	if n < 1 {
		panic(fmt.Sprintf("comm: invalid group size %d", n))
	}
	w := &world{size: n}
	w.cond = sync.NewCond(&w.mu)

	members := make([]Communicator, n)
	for rank := range n {
		members[rank] = &member{w: w, rank: rank}
	}
	return members
}

type member struct {
	w    *world
	rank int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.w.size }

func (m *member) Barrier() {
	w := m.w
	w.mu.Lock()
	defer w.mu.Unlock()

	gen := w.gen
	w.arrived++
	if w.arrived == w.size {
		w.arrived = 0
		w.gen++
		w.cond.Broadcast()
		return
	}
	for gen == w.gen {
		w.cond.Wait()
	}
}

func (m *member) Bcast(root int, v any) any {
	w := m.w
	if m.rank == root {
		w.mu.Lock()
		w.value = v
		w.mu.Unlock()
	}
	m.Barrier()

	w.mu.Lock()
	out := w.value
	w.mu.Unlock()

	// Nobody may overwrite value until every rank has read it.
	m.Barrier()
	return out
}

// Run executes fn once per rank of a new n-member group, each in its own
// goroutine, and returns the first error. A rank that returns early
// without issuing its remaining collective calls leaves its peers blocked,
// exactly as a real process group would.
func Run(n int, fn func(c Communicator) error) error {
	var g errgroup.Group
	for _, c := range NewWorld(n) {
		g.Go(func() error {
			if err := fn(c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
