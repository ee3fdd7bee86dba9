package distribute

import (
	"context"
	"fmt"

	"subhalo-pipeline/internal/model"
)

// Root is the rank that owns the work list and the aggregate table.
const Root = 0

// Comm is the execution context handed to every rank. It replaces a global
// communicator: rank, size and the collectives all travel through it.
//
// Every collective must be entered by all ranks. Calls block until the
// collective completes on this rank or ctx is done.
type Comm interface {
	Rank() int
	Size() int

	// BcastInt sends n from the root to every rank. Non-root arguments are ignored.
	BcastInt(ctx context.Context, n int) (int, error)

	// Scatter hands chunks[r] to rank r. Only the root's chunks are read; the
	// root does not wait for other ranks to pick theirs up.
	Scatter(ctx context.Context, chunks [][]model.Slot) ([]model.Slot, error)

	// Gather collects one partial from every rank on the root, ordered by rank.
	// Non-root ranks get nil.
	Gather(ctx context.Context, part model.Partial) ([]model.Partial, error)
}

type world struct {
	size    int
	bcast   []chan int
	scatter []chan []model.Slot
	gather  chan model.Partial
}

type localComm struct {
	w    *world
	rank int
}

// NewWorld creates size in-process ranks that talk over buffered channels.
// Each returned Comm is meant to be driven by its own goroutine.
func NewWorld(size int) ([]Comm, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidSize, size)
	}

	w := &world{
		size:    size,
		bcast:   make([]chan int, size),
		scatter: make([]chan []model.Slot, size),
		gather:  make(chan model.Partial, size),
	}
	comms := make([]Comm, size)
	for r := 0; r < size; r++ {
		w.bcast[r] = make(chan int, 1)
		w.scatter[r] = make(chan []model.Slot, 1)
		comms[r] = &localComm{w: w, rank: r}
	}
	return comms, nil
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.w.size }

func (c *localComm) BcastInt(ctx context.Context, n int) (int, error) {
	if c.rank == Root {
		for r := 0; r < c.w.size; r++ {
			select {
			case c.w.bcast[r] <- n:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	select {
	case v := <-c.w.bcast[c.rank]:
		return v, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *localComm) Scatter(ctx context.Context, chunks [][]model.Slot) ([]model.Slot, error) {
	if c.rank == Root {
		if len(chunks) != c.w.size {
			return nil, fmt.Errorf("%w: %d chunks for %d ranks", model.ErrInvalidSize, len(chunks), c.w.size)
		}
		for r, chunk := range chunks {
			// copy so ranks never share a backing array
			msg := append([]model.Slot(nil), chunk...)
			select {
			case c.w.scatter[r] <- msg:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	select {
	case chunk := <-c.w.scatter[c.rank]:
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *localComm) Gather(ctx context.Context, part model.Partial) ([]model.Partial, error) {
	part.Rank = c.rank
	select {
	case c.w.gather <- part:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c.rank != Root {
		return nil, nil
	}

	parts := make([]model.Partial, c.w.size)
	seen := make([]bool, c.w.size)
	for i := 0; i < c.w.size; i++ {
		select {
		case p := <-c.w.gather:
			if seen[p.Rank] {
				return nil, fmt.Errorf("rank %d sent two partials", p.Rank)
			}
			seen[p.Rank] = true
			parts[p.Rank] = p
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return parts, nil
}
