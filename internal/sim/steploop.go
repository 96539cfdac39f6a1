package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Speed factor bounds. Requests outside them are clamped.
const (
	MinSpeedFactor = 0.0001
	MaxSpeedFactor = 10000.0
)

const (
	minPacingSleep = time.Millisecond
	maxPacingLag   = 100 * time.Millisecond
)

// Pacing selects how the step loop relates simulated time to wall time.
type Pacing int

const (
	// PacingAccelerated runs steps back to back.
	PacingAccelerated Pacing = iota
	// PacingRealTime sleeps so that each step takes Period() of wall time.
	PacingRealTime
)

func (p Pacing) String() string {
	switch p {
	case PacingAccelerated:
		return "accelerated"
	case PacingRealTime:
		return "realtime"
	default:
		return fmt.Sprintf("Pacing(%d)", int(p))
	}
}

// ParsePacing maps a configuration name to a Pacing. Empty means accelerated.
func ParsePacing(name string) (Pacing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "accelerated", "fast":
		return PacingAccelerated, nil
	case "realtime", "real-time":
		return PacingRealTime, nil
	default:
		return 0, fmt.Errorf("sim: unknown pacing %q", name)
	}
}

// ClampSpeedFactor returns f limited to [MinSpeedFactor, MaxSpeedFactor].
func ClampSpeedFactor(f float64) float64 {
	if f != f || f < MinSpeedFactor {
		return MinSpeedFactor
	}
	if f > MaxSpeedFactor {
		return MaxSpeedFactor
	}
	return f
}

// StepFunc performs one simulation step.
type StepFunc func(ctx context.Context) error

// StepLoop counts and paces steps. It has no goroutine of its own; the
// caller invokes DoStep once per iteration.
type StepLoop struct {
	fn     StepFunc
	pacing Pacing
	step   atomic.Int64

	mu          sync.RWMutex
	frequency   float64
	speedFactor float64

	last  time.Time
	debt  time.Duration
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewStepLoop(fn StepFunc, pacing Pacing) *StepLoop {
	return &StepLoop{
		fn:          fn,
		pacing:      pacing,
		frequency:   1,
		speedFactor: 1,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func (l *StepLoop) SetFrequency(hz float64) {
	l.mu.Lock()
	l.frequency = hz
	l.mu.Unlock()
}

func (l *StepLoop) Frequency() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frequency
}

// SetSpeedFactor clamps f and returns the effective value.
func (l *StepLoop) SetSpeedFactor(f float64) float64 {
	f = ClampSpeedFactor(f)
	l.mu.Lock()
	l.speedFactor = f
	l.mu.Unlock()
	return f
}

func (l *StepLoop) SpeedFactor() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.speedFactor
}

func (l *StepLoop) SetCurrentStep(n int64) { l.step.Store(n) }
func (l *StepLoop) CurrentStep() int64     { return l.step.Load() }

// SimPeriod is the simulated duration of one step in seconds.
func (l *StepLoop) SimPeriod() float64 {
	return 1 / l.Frequency()
}

// Period is the wall-clock duration of one step under the current speed
// factor.
func (l *StepLoop) Period() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return time.Duration(float64(time.Second) / (l.frequency * l.speedFactor))
}

// DoStep runs the step function and advances the counter on success.
func (l *StepLoop) DoStep(ctx context.Context) error {
	if err := l.fn(ctx); err != nil {
		return err
	}
	l.step.Add(1)
	l.pace(ctx)
	return nil
}

// pace accumulates the difference between the target period and the
// observed step time, sleeping once at least a millisecond is owed.
func (l *StepLoop) pace(ctx context.Context) {
	if l.pacing != PacingRealTime {
		return
	}
	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	l.debt += l.Period() - now.Sub(l.last)
	l.last = now
	if l.debt < -maxPacingLag {
		l.debt = -maxPacingLag
	}
	if l.debt >= minPacingSleep {
		l.sleep(ctx, l.debt)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
