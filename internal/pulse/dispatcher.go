package pulse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnknownStrategy is returned for unrecognised strategy names or values.
var ErrUnknownStrategy = errors.New("pulse: unknown parallelization strategy")

// Strategy selects how a step's work units are spread over the pool.
type Strategy int

const (
	// StrategySequential evaluates every unit on the calling goroutine.
	StrategySequential Strategy = iota
	// StrategyChunk submits each unit to the pool as its own task.
	StrategyChunk
	// StrategyWarehouse starts one puller per worker; pullers take unit
	// indices from a shared cursor until the step's work is exhausted.
	StrategyWarehouse
)

func (s Strategy) String() string {
	switch s {
	case StrategySequential:
		return "sequential"
	case StrategyChunk:
		return "chunk"
	case StrategyWarehouse:
		return "warehouse"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sequential", "seq":
		return StrategySequential, nil
	case "", "chunk":
		return StrategyChunk, nil
	case "warehouse":
		return StrategyWarehouse, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Dispatcher partitions index ranges into units of a fixed chunk size.
type Dispatcher struct {
	chunkSize int
}

// NewDispatcher returns a dispatcher producing units of chunkSize items.
// Sizes below one are raised to one.
func NewDispatcher(chunkSize int) *Dispatcher {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Dispatcher{chunkSize: chunkSize}
}

// ChunkSize returns the number of items per unit.
func (d *Dispatcher) ChunkSize() int { return d.chunkSize }

// Units returns the number of units covering n items.
func (d *Dispatcher) Units(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + d.chunkSize - 1) / d.chunkSize
}

// Bounds returns the half-open item range of unit i for n items.
func (d *Dispatcher) Bounds(i, n int) (start, end int) {
	start = i * d.chunkSize
	end = start + d.chunkSize
	if end > n {
		end = n
	}
	return start, end
}

// RangeFunc evaluates items [start, end).
type RangeFunc func(start, end int) error

// Pipeline runs one step's worth of pulse work and returns once every unit
// has finished.
type Pipeline interface {
	Run(ctx context.Context, n int, fn RangeFunc) error
	Strategy() Strategy
}

// Build binds a strategy to a dispatcher and pool. The pool may be nil only
// for StrategySequential.
func Build(strategy Strategy, d *Dispatcher, pool *WorkerPool) (Pipeline, error) {
	if d == nil {
		d = NewDispatcher(1)
	}
	switch strategy {
	case StrategySequential:
		return &sequential{d: d}, nil
	case StrategyChunk, StrategyWarehouse:
		if pool == nil {
			return nil, fmt.Errorf("pulse: %s strategy requires a worker pool", strategy)
		}
		if strategy == StrategyChunk {
			return &chunked{d: d, pool: pool}, nil
		}
		return &warehouse{d: d, pool: pool}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(strategy))
	}
}

type sequential struct {
	d *Dispatcher
}

func (s *sequential) Strategy() Strategy { return StrategySequential }

func (s *sequential) Run(ctx context.Context, n int, fn RangeFunc) error {
	for i := 0; i < s.d.Units(n); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start, end := s.d.Bounds(i, n)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// firstError records the first error reported by concurrent units.
type firstError struct {
	once sync.Once
	err  error
}

func (f *firstError) set(err error) {
	if err == nil {
		return
	}
	f.once.Do(func() { f.err = err })
}

type chunked struct {
	d    *Dispatcher
	pool *WorkerPool
}

func (c *chunked) Strategy() Strategy { return StrategyChunk }

func (c *chunked) Run(ctx context.Context, n int, fn RangeFunc) error {
	units := c.d.Units(n)
	if units == 0 {
		return nil
	}

	var (
		wg    sync.WaitGroup
		first firstError
	)
	for i := 0; i < units; i++ {
		if err := ctx.Err(); err != nil {
			first.set(err)
			break
		}
		start, end := c.d.Bounds(i, n)
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			first.set(fn(start, end))
		})
		if err != nil {
			wg.Done()
			first.set(err)
			break
		}
	}
	wg.Wait()
	return first.err
}

type warehouse struct {
	d    *Dispatcher
	pool *WorkerPool
}

func (w *warehouse) Strategy() Strategy { return StrategyWarehouse }

func (w *warehouse) Run(ctx context.Context, n int, fn RangeFunc) error {
	units := w.d.Units(n)
	if units == 0 {
		return nil
	}

	pullers := w.pool.Size()
	if pullers > units {
		pullers = units
	}

	var (
		wg     sync.WaitGroup
		first  firstError
		cursor atomic.Int64
		failed atomic.Bool
	)
	pull := func() {
		defer wg.Done()
		for !failed.Load() {
			i := int(cursor.Add(1) - 1)
			if i >= units {
				return
			}
			if err := ctx.Err(); err != nil {
				first.set(err)
				failed.Store(true)
				return
			}
			start, end := w.d.Bounds(i, n)
			if err := fn(start, end); err != nil {
				first.set(err)
				failed.Store(true)
				return
			}
		}
	}

	for p := 0; p < pullers; p++ {
		wg.Add(1)
		if err := w.pool.Submit(pull); err != nil {
			wg.Done()
			first.set(err)
			break
		}
	}
	wg.Wait()
	return first.err
}
