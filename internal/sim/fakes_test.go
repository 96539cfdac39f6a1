package sim_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/san-kum/lidarsim/internal/pulse"
	"github.com/san-kum/lidarsim/internal/sim"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeScene struct {
	log    *callLog
	freq   float64
	steps  atomic.Int64
	failAt int64
	err    error
}

func (s *fakeScene) PrepareSimulation(freqHz float64) error {
	s.freq = freqHz
	return nil
}

func (s *fakeScene) DoSimStep() error {
	n := s.steps.Add(1)
	s.log.add("scene")
	if s.failAt > 0 && n == s.failAt {
		return s.err
	}
	return nil
}

type fakePlatform struct {
	log     *callLog
	scene   *fakeScene
	freq    float64
	steps   atomic.Int64
	reached atomic.Bool
}

func (p *fakePlatform) PrepareSimulation(pulseFreqHz float64) error {
	p.freq = pulseFreqHz
	return nil
}

func (p *fakePlatform) DoSimStep(float64) error {
	p.steps.Add(1)
	p.log.add("platform")
	return nil
}

func (p *fakePlatform) WaypointReached() bool { return p.reached.Load() }
func (p *fakePlatform) Scene() sim.Scene      { return p.scene }

type fakeHead struct{ done *atomic.Bool }

func (h fakeHead) RotateCompleted() bool { return h.done.Load() }

type fakeScanner struct {
	log      *callLog
	platform *fakePlatform
	freq     float64
	output   string

	rec      sim.Recorder
	pipeline pulse.Pipeline
	strategy pulse.Strategy
	headDone atomic.Bool
	steps    atomic.Int64
	finished atomic.Bool
	onStep   func(n int64)

	mu   sync.Mutex
	legs []int
	gps  []float64
}

func newFakeScanner(freq float64) *fakeScanner {
	log := &callLog{}
	scene := &fakeScene{log: log}
	return &fakeScanner{
		log:      log,
		platform: &fakePlatform{log: log, scene: scene},
		freq:     freq,
		output:   "/tmp/lidarsim/measurements.csv",
	}
}

func (s *fakeScanner) PrepareSimulation(rec sim.Recorder) error {
	s.rec = rec
	return nil
}

func (s *fakeScanner) BuildScanningPulseProcess(strategy pulse.Strategy, d *pulse.Dispatcher, pool *pulse.WorkerPool) error {
	p, err := pulse.Build(strategy, d, pool)
	if err != nil {
		return err
	}
	s.strategy = strategy
	s.pipeline = p
	return nil
}

func (s *fakeScanner) PulseFreqHz() float64     { return s.freq }
func (s *fakeScanner) Head(int) sim.ScannerHead { return fakeHead{done: &s.headDone} }
func (s *fakeScanner) Platform() sim.Platform   { return s.platform }
func (s *fakeScanner) OutputPath() string       { return s.output }
func (s *fakeScanner) scene() *fakeScene        { return s.platform.scene }

func (s *fakeScanner) OnSimulationFinished() error {
	s.finished.Store(true)
	return nil
}

func (s *fakeScanner) seenLegs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.legs...)
}

func (s *fakeScanner) seenGPS() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.gps...)
}

func (s *fakeScanner) markLegDone() {
	s.headDone.Store(true)
	s.platform.reached.Store(true)
}

func (s *fakeScanner) resetLeg() {
	s.headDone.Store(false)
	s.platform.reached.Store(false)
}

// DoSimStep emits one pulse through the pulse pipeline and records one
// measurement for it.
func (s *fakeScanner) DoSimStep(ctx context.Context, leg int, gpsTimeNs float64) error {
	n := s.steps.Add(1)
	s.log.add("scanner")

	s.mu.Lock()
	s.legs = append(s.legs, leg)
	s.gps = append(s.gps, gpsTimeNs)
	s.mu.Unlock()

	err := s.pipeline.Run(ctx, 1, func(start, end int) error {
		s.rec.RecordMeasurement(sim.Measurement{Leg: leg, PulseIndex: n, GPSTimeNs: gpsTimeNs})
		return nil
	})
	if err != nil {
		return err
	}
	s.rec.RecordTrajectory(sim.Trajectory{GPSTimeNs: gpsTimeNs})

	if s.onStep != nil {
		s.onStep(n)
	}
	return nil
}

type fakePlanner struct {
	legs    int
	scanner *fakeScanner
	calls   []int
	err     error
}

func (p *fakePlanner) NextLeg(completed int) (int, bool, error) {
	p.calls = append(p.calls, completed)
	if p.err != nil {
		return 0, false, p.err
	}
	if completed+1 >= p.legs {
		return 0, false, nil
	}
	p.scanner.resetLeg()
	return completed + 1, true, nil
}
