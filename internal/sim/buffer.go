package sim

import "sync"

// CycleBuffer collects records between callback deliveries. Drain hands the
// active buffers to the caller and installs fresh ones under a single lock,
// so no record can land in a batch that is being delivered.
type CycleBuffer struct {
	mu         sync.Mutex
	drained    *sync.Cond
	active     Batch
	generation uint64
}

func NewCycleBuffer() *CycleBuffer {
	b := &CycleBuffer{}
	b.drained = sync.NewCond(&b.mu)
	return b
}

func (b *CycleBuffer) RecordMeasurement(m Measurement) {
	b.mu.Lock()
	b.active.Measurements = append(b.active.Measurements, m)
	b.mu.Unlock()
}

func (b *CycleBuffer) RecordTrajectory(t Trajectory) {
	b.mu.Lock()
	b.active.Trajectories = append(b.active.Trajectories, t)
	b.mu.Unlock()
}

// Drain returns everything recorded since the previous drain, leaves the
// buffer empty and wakes WaitDrain callers.
func (b *CycleBuffer) Drain() Batch {
	b.mu.Lock()
	out := b.active
	b.active = Batch{
		Measurements: make([]Measurement, 0, cap(out.Measurements)),
		Trajectories: make([]Trajectory, 0, cap(out.Trajectories)),
	}
	b.generation++
	b.mu.Unlock()
	b.drained.Broadcast()
	return out
}

// Len reports the buffered measurement and trajectory counts.
func (b *CycleBuffer) Len() (measurements, trajectories int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active.Measurements), len(b.active.Trajectories)
}

// Generation counts completed drains.
func (b *CycleBuffer) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// WaitDrain blocks until a drain newer than after has happened and returns
// the current generation.
func (b *CycleBuffer) WaitDrain(after uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.generation <= after {
		b.drained.Wait()
	}
	return b.generation
}
