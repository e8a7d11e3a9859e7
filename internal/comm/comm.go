// Package comm provides the rank group used to coordinate the coupling
// layer. Each rank holds a Comm handle constructed once at startup and
// threaded through every operation that communicates; there are no
// process-wide communicator globals.
//
// Messages are addressed by (peer rank, integer tag). A {source, tag}
// pair identifies one logical exchange; concurrent exchanges between
// the same pair of ranks must use distinct tags. A Comm is owned by a
// single goroutine and is not safe for concurrent use.
package comm

import (
	"fmt"
	"sync"
)

type message struct {
	source  int
	tag     int
	payload any
}

// Group is a transport connecting a fixed set of ranks. The in-process
// implementation below backs each rank with a buffered mailbox channel;
// a socket transport can satisfy the same surface later.
type Group struct {
	size    int
	boxes   []chan message
	barrier *cyclicBarrier
}

// Comm is one rank's handle on its group.
type Comm struct {
	rank  int
	group *Group

	// Messages drained from the mailbox while waiting for a different
	// {source, tag}. Checked before the mailbox on every receive.
	pending []message
}

// NewLocalGroup creates an in-process group of n linked ranks.
// Payloads are passed by reference between goroutines; by convention
// anything sent through the group is treated as read-only afterwards.
func NewLocalGroup(n int) ([]*Comm, error) {
	if n < 1 {
		return nil, fmt.Errorf("group size must be positive, got %d", n)
	}
	g := &Group{
		size:    n,
		boxes:   make([]chan message, n),
		barrier: newCyclicBarrier(n),
	}
	for i := range g.boxes {
		// Sized so that the fan-in patterns used here (every rank
		// sending one message to the coordinator) never block the sender.
		g.boxes[i] = make(chan message, 8*n+16)
	}
	comms := make([]*Comm, n)
	for i := range comms {
		comms[i] = &Comm{rank: i, group: g}
	}
	return comms, nil
}

// Rank returns this handle's rank, 0 <= rank < Size.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the group.
func (c *Comm) Size() int { return c.group.size }

// Send delivers payload to dest under tag. Send does not block as long
// as dest keeps draining its mailbox.
func (c *Comm) Send(dest, tag int, payload any) error {
	if dest < 0 || dest >= c.group.size {
		return fmt.Errorf("send: destination rank %d out of range [0,%d)", dest, c.group.size)
	}
	c.group.boxes[dest] <- message{source: c.rank, tag: tag, payload: payload}
	return nil
}

// Recv blocks until a message from source with the given tag arrives.
// Messages with other {source, tag} pairs observed while waiting are
// queued and matched by later receives.
func (c *Comm) Recv(source, tag int) (any, error) {
	if source < 0 || source >= c.group.size {
		return nil, fmt.Errorf("recv: source rank %d out of range [0,%d)", source, c.group.size)
	}
	if p, ok := c.takePending(source, tag); ok {
		return p, nil
	}
	for {
		m := <-c.group.boxes[c.rank]
		if m.source == source && m.tag == tag {
			return m.payload, nil
		}
		c.pending = append(c.pending, m)
	}
}

// TryRecv is the non-blocking form of Recv. It reports whether a
// matching message was available.
func (c *Comm) TryRecv(source, tag int) (any, bool) {
	if p, ok := c.takePending(source, tag); ok {
		return p, true
	}
	for {
		select {
		case m := <-c.group.boxes[c.rank]:
			if m.source == source && m.tag == tag {
				return m.payload, true
			}
			c.pending = append(c.pending, m)
		default:
			return nil, false
		}
	}
}

// Bcast distributes payload from root to every rank. The root passes
// the value to send; other ranks pass nil and receive the root's value.
func (c *Comm) Bcast(root, tag int, payload any) (any, error) {
	if root < 0 || root >= c.group.size {
		return nil, fmt.Errorf("bcast: root rank %d out of range [0,%d)", root, c.group.size)
	}
	if c.rank == root {
		for i := 0; i < c.group.size; i++ {
			if i == root {
				continue
			}
			if err := c.Send(i, tag, payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	}
	return c.Recv(root, tag)
}

// Barrier blocks until every rank in the group has entered it.
func (c *Comm) Barrier() {
	c.group.barrier.wait()
}

func (c *Comm) takePending(source, tag int) (any, bool) {
	for i, m := range c.pending {
		if m.source == source && m.tag == tag {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return m.payload, true
		}
	}
	return nil, false
}

// cyclicBarrier is a reusable generation-counted barrier.
type cyclicBarrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	size  int
	count int
	gen   int
}

func newCyclicBarrier(n int) *cyclicBarrier {
	b := &cyclicBarrier{size: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *cyclicBarrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.count++
	if b.count == b.size {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
