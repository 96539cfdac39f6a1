package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/lidarsim/internal/gpstime"
	"github.com/san-kum/lidarsim/internal/logging"
	"github.com/san-kum/lidarsim/internal/observability"
	"github.com/san-kum/lidarsim/internal/pulse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Simulation.
type Options struct {
	Strategy          pulse.Strategy
	ChunkSize         int
	Workers           int
	CallbackFrequency int
	FixedGPSStart     string
	ExportToFile      bool
	Pacing            Pacing
	Metrics           *observability.SimCollector
	Planner           LegPlanner
}

// Simulation is the controller of one survey run.
type Simulation struct {
	opts    Options
	log     logging.Logger
	metrics *observability.SimCollector
	tracer  trace.Tracer

	loop       *StepLoop
	buffer     *CycleBuffer
	dispatcher *pulse.Dispatcher
	pool       *pulse.WorkerPool

	mu                sync.Mutex
	resumed           *sync.Cond
	scanner           Scanner
	callback          Callback
	callbackFrequency int
	state             RunState
	paused            bool
	stopped           bool
	started           bool

	clock         atomic.Pointer[gpstime.Clock]
	leg           atomic.Int64
	legsCompleted atomic.Int64

	startedAt     time.Time
	loopStartedAt time.Time
	loopEndedAt   time.Time
}

func New(opts Options, log logging.Logger) *Simulation {
	s := &Simulation{
		opts:              opts,
		log:               logging.OrNoop(log),
		metrics:           opts.Metrics,
		tracer:            observability.Tracer(),
		buffer:            NewCycleBuffer(),
		dispatcher:        pulse.NewDispatcher(opts.ChunkSize),
		pool:              pulse.NewWorkerPool(opts.Workers),
		callbackFrequency: opts.CallbackFrequency,
		state:             StateRunning,
	}
	s.resumed = sync.NewCond(&s.mu)
	s.loop = NewStepLoop(func(ctx context.Context) error {
		return s.DoSimStep(context.WithoutCancel(ctx))
	}, opts.Pacing)
	s.metrics.SetSpeedFactor(s.loop.SpeedFactor())
	return s
}

// Close releases the worker pool.
func (s *Simulation) Close() {
	s.pool.Close()
}

// SetScanner binds the scanner driven by the run. Setting the current
// scanner again is a no-op.
func (s *Simulation) SetScanner(sc Scanner) {
	s.mu.Lock()
	if s.scanner == sc {
		s.mu.Unlock()
		return
	}
	s.scanner = sc
	s.mu.Unlock()
	s.log.Info(context.Background(), "scanner changed")
}

func (s *Simulation) Scanner() Scanner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner
}

func (s *Simulation) SetCallback(fn Callback) {
	s.mu.Lock()
	s.callback = fn
	s.mu.Unlock()
}

// SetCallbackFrequency sets the number of loop iterations between
// deliveries. Zero or less disables delivery.
func (s *Simulation) SetCallbackFrequency(n int) {
	s.mu.Lock()
	s.callbackFrequency = n
	s.mu.Unlock()
}

func (s *Simulation) CallbackFrequency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbackFrequency
}

// SetSimSpeedFactor clamps f into the supported range, applies it and
// returns the effective value.
func (s *Simulation) SetSimSpeedFactor(f float64) float64 {
	eff := s.loop.SetSpeedFactor(f)
	s.metrics.SetSpeedFactor(eff)
	s.log.Info(context.Background(), "simulation speed factor set",
		logging.Float("requested", f),
		logging.Float("effective", eff),
	)
	return eff
}

func (s *Simulation) SpeedFactor() float64 { return s.loop.SpeedFactor() }

// Pause suspends or resumes the loop at the next step boundary. Repeating
// the current setting has no effect.
func (s *Simulation) Pause(pause bool) {
	s.mu.Lock()
	if s.paused == pause || s.state == StateFinished {
		s.mu.Unlock()
		return
	}
	s.paused = pause
	if pause {
		s.state = StatePaused
	} else {
		s.state = StateRunning
	}
	s.mu.Unlock()
	s.resumed.Broadcast()

	s.metrics.SetPaused(pause)
	s.log.Info(context.Background(), "simulation pause toggled", logging.Bool("paused", pause))
}

// Stop requests loop termination at the next step boundary.
func (s *Simulation) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.resumed.Broadcast()
}

func (s *Simulation) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Simulation) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulation) Steps() int64         { return s.loop.CurrentStep() }
func (s *Simulation) CurrentLeg() int      { return int(s.leg.Load()) }
func (s *Simulation) LegsCompleted() int   { return int(s.legsCompleted.Load()) }
func (s *Simulation) Buffer() *CycleBuffer { return s.buffer }

// GPSTime returns the current GPS time-of-week in nanoseconds, or zero
// before the run is prepared.
func (s *Simulation) GPSTime() float64 {
	if c := s.clock.Load(); c != nil {
		return c.Now()
	}
	return 0
}

// PrepareSimulation resolves the clock and prepares every collaborator for
// the scanner's pulse frequency. A malformed fixed GPS start is fatal.
func (s *Simulation) PrepareSimulation(ctx context.Context) error {
	sc := s.Scanner()
	if sc == nil {
		return ErrNoScanner
	}

	clock, err := gpstime.New(s.opts.FixedGPSStart, s.log)
	if err != nil {
		return err
	}

	freq := sc.PulseFreqHz()
	if !(freq > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidFrequency, freq)
	}

	platform := sc.Platform()
	if err := platform.PrepareSimulation(freq); err != nil {
		return fmt.Errorf("prepare platform: %w", err)
	}
	if err := sc.PrepareSimulation(s.buffer); err != nil {
		return fmt.Errorf("prepare scanner: %w", err)
	}
	if err := sc.BuildScanningPulseProcess(s.opts.Strategy, s.dispatcher, s.pool); err != nil {
		return fmt.Errorf("build pulse process: %w", err)
	}

	s.loop.SetFrequency(freq)
	s.loop.SetCurrentStep(0)
	clock.SetStepPeriod(s.loop.SimPeriod())

	if err := platform.Scene().PrepareSimulation(freq); err != nil {
		return fmt.Errorf("prepare scene: %w", err)
	}

	s.leg.Store(0)
	s.legsCompleted.Store(0)
	s.clock.Store(clock)

	s.log.Debug(ctx, "simulation prepared",
		logging.Float("pulse_freq_hz", freq),
		logging.Float("gps_start_ns", clock.Now()),
		logging.Float("step_ns", clock.Step()),
	)
	return nil
}

// DoSimStep executes one step. When the current leg is complete the step
// only runs the leg-completion path and advances nothing else.
func (s *Simulation) DoSimStep(ctx context.Context) (err error) {
	sc := s.Scanner()
	if sc == nil {
		return ErrNoScanner
	}
	clock := s.clock.Load()
	if clock == nil {
		return ErrNotPrepared
	}

	start := time.Now()
	defer func() {
		if err == nil {
			s.metrics.ObserveStep(time.Since(start))
		}
	}()

	leg := s.CurrentLeg()
	platform := sc.Platform()
	if sc.Head(leg).RotateCompleted() && platform.WaypointReached() {
		return s.onLegCompleted(ctx, leg, clock)
	}

	freq := sc.PulseFreqHz()
	if err := platform.DoSimStep(freq); err != nil {
		return s.stepError(leg, clock, fmt.Errorf("platform: %w", err))
	}
	if err := sc.DoSimStep(ctx, leg, clock.Now()); err != nil {
		return s.stepError(leg, clock, fmt.Errorf("scanner: %w", err))
	}
	if err := platform.Scene().DoSimStep(); err != nil {
		return s.stepError(leg, clock, fmt.Errorf("scene: %w", err))
	}
	clock.Advance()
	return nil
}

func (s *Simulation) onLegCompleted(ctx context.Context, leg int, clock *gpstime.Clock) error {
	s.legsCompleted.Add(1)
	s.log.Info(ctx, "leg completed",
		logging.Int("leg", leg),
		logging.Int64("step", s.Steps()),
		logging.Float("gps_time_ns", clock.Now()),
	)
	trace.SpanFromContext(ctx).AddEvent("leg.completed", trace.WithAttributes(
		attribute.Int("leg", leg),
		attribute.Int64("step", s.Steps()),
	))

	planner := s.opts.Planner
	if planner == nil {
		s.metrics.LegCompleted(leg)
		s.Stop()
		return nil
	}
	next, ok, err := planner.NextLeg(leg)
	if err != nil {
		return s.stepError(leg, clock, fmt.Errorf("leg planner: %w", err))
	}
	if !ok {
		s.metrics.LegCompleted(leg)
		s.Stop()
		return nil
	}
	s.leg.Store(int64(next))
	s.metrics.LegCompleted(next)
	return nil
}

func (s *Simulation) stepError(leg int, clock *gpstime.Clock, err error) error {
	return &SimulationError{
		Step:      s.Steps(),
		Leg:       leg,
		GPSTimeNs: clock.Now(),
		Wrapped:   err,
	}
}

// Start prepares the run and loops until it is stopped, by Stop, by the
// leg planner, or by ctx being done. A failed step ends the run after the
// usual finish bookkeeping and the error is returned.
func (s *Simulation) Start(ctx context.Context) error {
	sc, err := s.begin()
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("strategy", s.opts.Strategy.String()),
		attribute.Int("chunk_size", s.dispatcher.ChunkSize()),
		attribute.Int("workers", s.pool.Size()),
	))
	defer span.End()

	stopOnDone := context.AfterFunc(ctx, s.Stop)
	defer stopOnDone()

	s.startedAt = time.Now()
	s.reportPreStart(ctx, sc)

	if err := s.PrepareSimulation(ctx); err != nil {
		s.setState(StateFinished)
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare failed")
		return err
	}

	s.loopStartedAt = time.Now()
	runErr := s.run(ctx)
	s.loopEndedAt = time.Now()

	s.reportPreFinish(ctx)
	finishErr := sc.OnSimulationFinished()
	if finishErr != nil {
		finishErr = fmt.Errorf("scanner finish: %w", finishErr)
	}
	s.reportPostFinish(ctx)
	s.deliver(ctx, sc)
	s.setState(StateFinished)

	span.SetAttributes(
		attribute.Int64("steps", s.Steps()),
		attribute.Int("legs_completed", s.LegsCompleted()),
	)
	if err := errors.Join(runErr, finishErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return err
	}
	return nil
}

func (s *Simulation) begin() (Scanner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateFinished:
		return nil, ErrFinished
	case s.started:
		return nil, ErrStarted
	case s.scanner == nil:
		return nil, ErrNoScanner
	}
	s.started = true
	return s.scanner, nil
}

func (s *Simulation) run(ctx context.Context) error {
	sinceCallback := 0
	for s.awaitResume() {
		if err := s.loop.DoStep(ctx); err != nil {
			s.log.Error(ctx, "simulation step failed", logging.Err(err))
			return err
		}
		sinceCallback++
		if freq := s.CallbackFrequency(); freq > 0 && sinceCallback >= freq {
			sinceCallback = 0
			s.deliver(ctx, s.Scanner())
		}
	}
	return nil
}

// awaitResume blocks while the run is paused and reports whether the loop
// should take another step.
func (s *Simulation) awaitResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.stopped {
		s.resumed.Wait()
	}
	return !s.stopped
}

// deliver drains the cycle buffer into the registered callback.
func (s *Simulation) deliver(ctx context.Context, sc Scanner) {
	s.mu.Lock()
	cb, freq := s.callback, s.callbackFrequency
	s.mu.Unlock()
	if cb == nil || freq <= 0 {
		return
	}

	batch := s.buffer.Drain()
	if s.opts.ExportToFile && sc != nil {
		batch.OutputPath = sc.OutputPath()
	}
	cb(batch)

	s.metrics.ObserveCallback(len(batch.Measurements))
	s.log.Debug(ctx, "callback delivered",
		logging.Int("measurements", len(batch.Measurements)),
		logging.Int("trajectories", len(batch.Trajectories)),
	)
}

func (s *Simulation) setState(st RunState) {
	s.mu.Lock()
	s.state = st
	s.paused = false
	s.mu.Unlock()
	s.resumed.Broadcast()
}
