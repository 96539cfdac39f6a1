package sim_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/lidarsim/internal/gpstime"
	"github.com/san-kum/lidarsim/internal/logging"
	"github.com/san-kum/lidarsim/internal/observability"
	"github.com/san-kum/lidarsim/internal/pulse"
	"github.com/san-kum/lidarsim/internal/sim"
)

const fixedStart = "1262304000"

var _ = Describe("Simulation", func() {
	var (
		ctx     context.Context
		opts    sim.Options
		scanner *fakeScanner
	)

	newSim := func() *sim.Simulation {
		s := sim.New(opts, nil)
		DeferCleanup(s.Close)
		s.SetScanner(scanner)
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		scanner = newFakeScanner(1000)
		opts = sim.Options{
			Strategy:      pulse.StrategyChunk,
			ChunkSize:     2,
			Workers:       2,
			FixedGPSStart: fixedStart,
		}
	})

	Describe("PrepareSimulation", func() {
		It("propagates the pulse frequency and builds the pulse process", func() {
			s := newSim()
			Expect(s.PrepareSimulation(ctx)).To(Succeed())

			Expect(scanner.platform.freq).To(Equal(1000.0))
			Expect(scanner.scene().freq).To(Equal(1000.0))
			Expect(scanner.pipeline).NotTo(BeNil())
			Expect(scanner.strategy).To(Equal(pulse.StrategyChunk))
			Expect(s.Steps()).To(BeZero())
			Expect(s.GPSTime()).To(Equal(gpstime.TimeOfWeek(1262304000)))
		})

		It("rejects a non-positive pulse frequency", func() {
			scanner.freq = 0
			s := newSim()
			Expect(s.PrepareSimulation(ctx)).To(MatchError(sim.ErrInvalidFrequency))
		})

		It("requires a scanner", func() {
			s := sim.New(opts, nil)
			DeferCleanup(s.Close)
			Expect(s.PrepareSimulation(ctx)).To(MatchError(sim.ErrNoScanner))
			Expect(s.Start(ctx)).To(MatchError(sim.ErrNoScanner))
		})
	})

	Describe("DoSimStep", func() {
		var s *sim.Simulation

		BeforeEach(func() {
			s = newSim()
			Expect(s.PrepareSimulation(ctx)).To(Succeed())
		})

		It("advances platform, scanner and scene in order, then the clock", func() {
			t0 := s.GPSTime()
			Expect(s.DoSimStep(ctx)).To(Succeed())

			Expect(scanner.log.snapshot()).To(Equal([]string{"platform", "scanner", "scene"}))
			Expect(scanner.seenGPS()).To(Equal([]float64{t0}))
			Expect(s.GPSTime()).To(BeNumerically("~", t0+1e6, 1e-3))
		})

		It("takes only the leg-completion path when head and waypoint are done", func() {
			scanner.markLegDone()
			t0 := s.GPSTime()

			Expect(s.DoSimStep(ctx)).To(Succeed())

			Expect(scanner.log.snapshot()).To(BeEmpty())
			Expect(scanner.platform.steps.Load()).To(BeZero())
			Expect(s.GPSTime()).To(Equal(t0))
			Expect(s.LegsCompleted()).To(Equal(1))
			Expect(s.IsStopped()).To(BeTrue())
		})

		It("keeps stepping while only one completion predicate holds", func() {
			scanner.headDone.Store(true)
			Expect(s.DoSimStep(ctx)).To(Succeed())
			scanner.headDone.Store(false)
			scanner.platform.reached.Store(true)
			Expect(s.DoSimStep(ctx)).To(Succeed())

			Expect(scanner.steps.Load()).To(Equal(int64(2)))
			Expect(s.LegsCompleted()).To(BeZero())
		})

		It("wraps collaborator failures without advancing the clock", func() {
			boom := errors.New("scene exploded")
			scanner.scene().failAt = 1
			scanner.scene().err = boom
			t0 := s.GPSTime()

			err := s.DoSimStep(ctx)
			Expect(err).To(MatchError(boom))

			var se *sim.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Leg).To(Equal(0))
			Expect(se.GPSTimeNs).To(Equal(t0))
			Expect(s.GPSTime()).To(Equal(t0))
		})

		It("fails before preparation", func() {
			fresh := newSim()
			Expect(fresh.DoSimStep(ctx)).To(MatchError(sim.ErrNotPrepared))
		})
	})

	Describe("Start", func() {
		It("delivers one callback per N steps and leaves the buffer empty each time", func() {
			s := newSim()
			s.SetCallbackFrequency(5)

			var batches []sim.Batch
			var residual []int
			s.SetCallback(func(b sim.Batch) {
				batches = append(batches, b)
				m, t := s.Buffer().Len()
				residual = append(residual, m+t)
			})
			scanner.onStep = func(n int64) {
				if n == 23 {
					s.Stop()
				}
			}

			Expect(s.Start(ctx)).To(Succeed())

			Expect(s.Steps()).To(Equal(int64(23)))
			Expect(batches).To(HaveLen(5))
			for _, b := range batches[:4] {
				Expect(b.Measurements).To(HaveLen(5))
				Expect(b.Trajectories).To(HaveLen(5))
				Expect(b.OutputPath).To(BeEmpty())
			}
			Expect(batches[4].Measurements).To(HaveLen(3))
			Expect(residual).To(HaveEach(BeZero()))
			Expect(s.State()).To(Equal(sim.StateFinished))
			Expect(scanner.finished.Load()).To(BeTrue())
		})

		It("does not deliver when the frequency is zero", func() {
			s := newSim()
			s.SetCallbackFrequency(0)
			calls := 0
			s.SetCallback(func(sim.Batch) { calls++ })
			scanner.onStep = func(n int64) {
				if n == 10 {
					s.Stop()
				}
			}

			Expect(s.Start(ctx)).To(Succeed())
			Expect(calls).To(BeZero())
			m, _ := s.Buffer().Len()
			Expect(m).To(Equal(10))
		})

		It("passes the output path when exporting to file", func() {
			opts.ExportToFile = true
			opts.CallbackFrequency = 2
			s := newSim()

			var paths []string
			s.SetCallback(func(b sim.Batch) { paths = append(paths, b.OutputPath) })
			scanner.onStep = func(n int64) {
				if n == 4 {
					s.Stop()
				}
			}

			Expect(s.Start(ctx)).To(Succeed())
			Expect(paths).To(HaveLen(3))
			Expect(paths).To(HaveEach(Equal(scanner.output)))
		})

		It("walks legs through the planner and stops when it runs out", func() {
			planner := &fakePlanner{legs: 3, scanner: scanner}
			opts.Planner = planner
			s := newSim()
			scanner.onStep = func(n int64) {
				if n%4 == 0 {
					scanner.markLegDone()
				}
			}

			Expect(s.Start(ctx)).To(Succeed())

			Expect(planner.calls).To(Equal([]int{0, 1, 2}))
			Expect(s.LegsCompleted()).To(Equal(3))
			Expect(scanner.steps.Load()).To(Equal(int64(12)))
			Expect(s.Steps()).To(Equal(int64(15)))
			legs := scanner.seenLegs()
			Expect(legs[0]).To(Equal(0))
			Expect(legs[4]).To(Equal(1))
			Expect(legs[11]).To(Equal(2))
		})

		It("aborts before any step on a malformed GPS start", func() {
			opts.FixedGPSStart = "not-a-date"
			s := newSim()

			err := s.Start(ctx)
			Expect(err).To(MatchError(gpstime.ErrInvalidStart))
			Expect(scanner.steps.Load()).To(BeZero())
			Expect(scanner.platform.freq).To(BeZero())
			Expect(s.State()).To(Equal(sim.StateFinished))
		})

		It("ends the run on a collaborator error after flushing", func() {
			boom := errors.New("scene exploded")
			scanner.scene().failAt = 3
			scanner.scene().err = boom
			opts.CallbackFrequency = 100
			s := newSim()

			var batches []sim.Batch
			s.SetCallback(func(b sim.Batch) { batches = append(batches, b) })

			err := s.Start(ctx)
			Expect(err).To(MatchError(boom))
			var se *sim.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Step).To(Equal(int64(2)))

			Expect(scanner.finished.Load()).To(BeTrue())
			Expect(s.State()).To(Equal(sim.StateFinished))
			Expect(batches).To(HaveLen(1))
			Expect(batches[0].Measurements).To(HaveLen(3))
		})

		It("cannot be restarted once finished", func() {
			s := newSim()
			scanner.onStep = func(int64) { s.Stop() }
			Expect(s.Start(ctx)).To(Succeed())
			Expect(s.Start(ctx)).To(MatchError(sim.ErrFinished))
		})

		It("stops at a step boundary when the context is canceled", func() {
			opts.CallbackFrequency = 1000
			s := newSim()
			s.SetCallback(func(sim.Batch) {})

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- s.Start(runCtx) }()

			Eventually(s.Steps).Should(BeNumerically(">", 0))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(s.State()).To(Equal(sim.StateFinished))
		})

		It("publishes step and callback metrics", func() {
			collector, err := observability.NewSimCollector(prometheus.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			opts.Metrics = collector
			opts.CallbackFrequency = 4
			s := newSim()
			s.SetCallback(func(sim.Batch) {})
			scanner.onStep = func(n int64) {
				if n == 8 {
					s.Stop()
				}
			}

			Expect(s.Start(ctx)).To(Succeed())
			Expect(testutil.ToFloat64(collector.Steps)).To(Equal(8.0))
			Expect(testutil.ToFloat64(collector.Callbacks)).To(Equal(3.0))
		})

		It("counts only successful steps in the step metric", func() {
			collector, err := observability.NewSimCollector(prometheus.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			opts.Metrics = collector
			scanner.scene().failAt = 3
			scanner.scene().err = errors.New("scene exploded")
			s := newSim()

			Expect(s.Start(ctx)).NotTo(Succeed())
			Expect(s.Steps()).To(Equal(int64(2)))
			Expect(testutil.ToFloat64(collector.Steps)).To(Equal(float64(s.Steps())))
		})
	})

	Describe("Pause", func() {
		It("performs no steps while paused and resumes on Pause(false)", func() {
			opts.CallbackFrequency = 1000
			s := newSim()
			s.SetCallback(func(sim.Batch) {})

			s.Pause(true)
			s.Pause(true)
			Expect(s.State()).To(Equal(sim.StatePaused))

			done := make(chan error, 1)
			go func() { done <- s.Start(ctx) }()

			Consistently(s.Steps, 50*time.Millisecond).Should(BeZero())

			s.Pause(false)
			Expect(s.State()).To(Equal(sim.StateRunning))
			Eventually(s.Steps).Should(BeNumerically(">", 0))

			s.Pause(true)
			time.Sleep(10 * time.Millisecond)
			frozen := s.Steps()
			Consistently(s.Steps, 50*time.Millisecond).Should(Equal(frozen))

			s.Stop()
			Eventually(done).Should(Receive(BeNil()))
			Expect(s.State()).To(Equal(sim.StateFinished))
		})

		It("treats resuming a running simulation as a no-op", func() {
			s := newSim()
			s.Pause(false)
			Expect(s.State()).To(Equal(sim.StateRunning))
		})

		It("ignores pause requests after the run finished", func() {
			s := newSim()
			scanner.onStep = func(int64) { s.Stop() }
			Expect(s.Start(ctx)).To(Succeed())
			s.Pause(true)
			Expect(s.State()).To(Equal(sim.StateFinished))
		})
	})

	Describe("SetScanner", func() {
		It("logs only when the scanner actually changes", func() {
			var buf syncBuffer
			s := sim.New(opts, logging.New(logging.Config{Format: "json", Output: &buf}))
			DeferCleanup(s.Close)

			s.SetScanner(scanner)
			s.SetScanner(scanner)
			Expect(strings.Count(buf.String(), "scanner changed")).To(Equal(1))

			s.SetScanner(newFakeScanner(10))
			Expect(strings.Count(buf.String(), "scanner changed")).To(Equal(2))
		})
	})

	DescribeTable("SetSimSpeedFactor",
		func(in, want float64) {
			s := newSim()
			Expect(s.SetSimSpeedFactor(in)).To(Equal(want))
			Expect(s.SpeedFactor()).To(Equal(want))
		},
		Entry("zero clamps to the minimum", 0.0, sim.MinSpeedFactor),
		Entry("too fast clamps to the maximum", 20000.0, sim.MaxSpeedFactor),
		Entry("in range is kept", 5.0, 5.0),
	)
})

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
