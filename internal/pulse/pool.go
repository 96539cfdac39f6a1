// Package pulse partitions per-step pulse work into fixed-size units and
// runs them on a shared worker pool.
package pulse

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("pulse: worker pool closed")

// Task is a unit of work executed by the pool.
type Task func()

// WorkerPool runs tasks on a fixed number of goroutines fed by a buffered
// channel. It is shared by every step of a simulation run.
type WorkerPool struct {
	workers int
	tasks   chan Task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorkerPool starts a pool with the given number of workers. A
// non-positive count uses runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, workers*2),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Size returns the number of worker goroutines.
func (p *WorkerPool) Size() int { return p.workers }

// Submit queues a task, blocking while the queue is full.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// Close stops accepting tasks and waits for queued ones to finish. It is
// safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
