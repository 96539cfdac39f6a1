package survey

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/lidarsim/internal/energy"
	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/logging"
	"github.com/san-kum/lidarsim/internal/observability"
	"github.com/san-kum/lidarsim/internal/pulse"
	"github.com/san-kum/lidarsim/internal/sim"
)

const (
	goldenAngle = 2.399963229728653 // π(3-√5)
	goldenFrac  = 0.6180339887498949
	pulseFrac   = 0.4142135623730951 // frac(√2)
)

// ScannerConfig describes the device and its detection limits.
type ScannerConfig struct {
	PulseFreqHz        float64
	Beam               energy.Beam
	Receiver           energy.Receiver
	Mode               energy.Mode
	Extinction         float64 // atmospheric extinction coefficient, 1/m
	DetectionThreshold float64 // minimum received power, watts
	MaxRange           float64 // metres
	MaxReturns         int
	BeamSamples        int // subrays per pulse
	TrajectoryInterval int // steps between trajectory samples, 0 disables
	ScanAngle          float64
	ScanFreq           float64
	OutputPath         string
}

func (c ScannerConfig) validate() error {
	switch {
	case !(c.PulseFreqHz > 0):
		return errors.New("survey: pulse frequency must be positive")
	case c.BeamSamples < 1:
		return errors.New("survey: beam samples must be at least 1")
	case c.MaxReturns < 1:
		return errors.New("survey: max returns must be at least 1")
	case !(c.MaxRange > 0):
		return errors.New("survey: max range must be positive")
	}
	return nil
}

type subray struct {
	angle  float64 // off-axis angle
	theta  float64 // azimuth around the beam axis
	sample float64 // coverage sample in [0, 1)
}

type subrayResult struct {
	hit     bool
	surface int
	rng     float64
	power   float64
}

// Scanner emits one pulse per step along the deflected beam and turns the
// subray hits into measurements.
type Scanner struct {
	cfg       ScannerConfig
	log       logging.Logger
	metrics   *observability.SimCollector
	platform  *LinearPlatform
	head      RotatingHead
	deflector OscillatingDeflector
	active    bool

	rec      sim.Recorder
	pipeline pulse.Pipeline
	subrays  []subray
	results  []subrayResult

	steps   int64
	pulses  int64
	returns int64
}

func NewScanner(cfg ScannerConfig, platform *LinearPlatform, log logging.Logger, metrics *observability.SimCollector) (*Scanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scanner{
		cfg:       cfg,
		log:       logging.OrNoop(log),
		metrics:   metrics,
		platform:  platform,
		deflector: OscillatingDeflector{ScanAngle: cfg.ScanAngle, ScanFreq: cfg.ScanFreq},
		active:    true,
	}, nil
}

func (s *Scanner) PrepareSimulation(rec sim.Recorder) error {
	if rec == nil {
		return errors.New("survey: scanner needs a recorder")
	}
	s.rec = rec
	s.head.PrepareSimulation(s.cfg.PulseFreqHz)
	s.deflector.PrepareSimulation(s.cfg.PulseFreqHz)
	s.subrays = sampleBeam(s.cfg.BeamSamples, s.cfg.Beam.Divergence)
	s.results = make([]subrayResult, len(s.subrays))
	s.steps, s.pulses, s.returns = 0, 0, 0
	return nil
}

func (s *Scanner) BuildScanningPulseProcess(strategy pulse.Strategy, d *pulse.Dispatcher, pool *pulse.WorkerPool) error {
	p, err := pulse.Build(strategy, d, pool)
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

func (s *Scanner) PulseFreqHz() float64        { return s.cfg.PulseFreqHz }
func (s *Scanner) Head(int) sim.ScannerHead    { return &s.head }
func (s *Scanner) Platform() sim.Platform      { return s.platform }
func (s *Scanner) OutputPath() string          { return s.cfg.OutputPath }
func (s *Scanner) SetActive(active bool)       { s.active = active }
func (s *Scanner) Pulses() int64               { return s.pulses }
func (s *Scanner) Returns() int64              { return s.returns }
func (s *Scanner) RotatingHead() *RotatingHead { return &s.head }
func (s *Scanner) Config() ScannerConfig       { return s.cfg }

func (s *Scanner) OnSimulationFinished() error {
	s.log.Info(context.Background(), "scanner finished",
		logging.Int64("steps", s.steps),
		logging.Int64("pulses", s.pulses),
		logging.Int64("returns", s.returns),
	)
	return nil
}

// DoSimStep advances the head and deflector, samples the trajectory and,
// while the leg is active, evaluates one pulse.
func (s *Scanner) DoSimStep(ctx context.Context, leg int, gpsTimeNs float64) error {
	if s.pipeline == nil {
		return errors.New("survey: pulse process not built")
	}
	s.head.DoSimStep()
	s.deflector.DoSimStep()

	if n := s.cfg.TrajectoryInterval; n > 0 && s.steps%int64(n) == 0 {
		s.rec.RecordTrajectory(sim.Trajectory{
			GPSTimeNs: gpsTimeNs,
			Position:  s.platform.Position(),
			Heading:   s.platform.Heading(),
		})
	}
	s.steps++

	if !s.active {
		return nil
	}
	return s.emitPulse(ctx, leg, gpsTimeNs)
}

// BeamDirection is the current central beam direction.
func (s *Scanner) BeamDirection() geom.Vec3 {
	alpha := s.deflector.Angle()
	beta := s.platform.Heading() + s.head.Angle() + math.Pi/2
	return geom.Vec3{
		X: math.Sin(alpha) * math.Cos(beta),
		Y: math.Sin(alpha) * math.Sin(beta),
		Z: -math.Cos(alpha),
	}
}

func (s *Scanner) emitPulse(ctx context.Context, leg int, gpsTimeNs float64) error {
	origin := s.platform.Position()
	dir := s.BeamDirection()
	u, v := orthoBasis(dir)
	idx := s.pulses
	s.pulses++

	err := s.pipeline.Run(ctx, len(s.subrays), func(start, end int) error {
		for k := start; k < end; k++ {
			s.results[k] = s.evaluate(origin, dir, u, v, idx, k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pulse %d: %w", idx, err)
	}

	returns := s.collect()
	powers := make([]float64, len(returns))
	for i, r := range returns {
		powers[i] = r.power
		s.rec.RecordMeasurement(sim.Measurement{
			Leg:           leg,
			PulseIndex:    idx,
			ReturnNumber:  i + 1,
			Position:      origin.Add(dir.Scale(r.rng)),
			BeamOrigin:    origin,
			BeamDirection: dir,
			Range:         r.rng,
			Intensity:     r.power,
			GPSTimeNs:     gpsTimeNs,
		})
	}
	s.returns += int64(len(returns))
	s.metrics.ObservePulse(powers...)
	return nil
}

// evaluate traces subray k of pulse idx and computes its received power.
func (s *Scanner) evaluate(origin, dir, u, v geom.Vec3, idx int64, k int) subrayResult {
	sr := s.subrays[k]
	tanA := math.Tan(sr.angle)
	sd := dir.
		Add(u.Scale(tanA * math.Cos(sr.theta))).
		Add(v.Scale(tanA * math.Sin(sr.theta))).
		Normalize()

	sample := frac(sr.sample + float64(idx)*pulseFrac)
	hit, ok := s.platform.scene.Intersect(origin, sd, s.cfg.MaxRange, sample)
	if !ok {
		return subrayResult{}
	}

	b := s.cfg.Beam
	mat := s.platform.scene.surfaces[hit.Surface].Material
	bdrf := mat.Reflectance * energy.PhongBDRF(hit.Incident, mat.Specularity, mat.Shininess)
	radius := hit.Range*math.Tan(b.Divergence/2) + b.WaistRadius
	alf := math.Pi * radius * radius / float64(len(s.subrays))
	sigma := energy.CrossSection(bdrf, alf, hit.Incident)

	return subrayResult{
		hit:     true,
		surface: hit.Surface,
		rng:     hit.Range,
		power:   s.cfg.Mode.ReceivedPower(b, s.cfg.Receiver, hit.Range, hit.Range*tanA, s.cfg.Extinction, sigma),
	}
}

type echo struct {
	rng   float64
	power float64
}

// collect merges subray hits per surface into echoes, drops those below the
// detection threshold and keeps the nearest MaxReturns.
func (s *Scanner) collect() []echo {
	type acc struct{ power, weighted float64 }
	bySurface := make(map[int]*acc)
	for _, r := range s.results {
		if !r.hit || math.IsNaN(r.power) || math.IsInf(r.power, 0) {
			continue
		}
		a := bySurface[r.surface]
		if a == nil {
			a = &acc{}
			bySurface[r.surface] = a
		}
		a.power += r.power
		a.weighted += r.power * r.rng
	}

	echoes := make([]echo, 0, len(bySurface))
	for _, a := range bySurface {
		if a.power < s.cfg.DetectionThreshold || a.power <= 0 {
			continue
		}
		echoes = append(echoes, echo{rng: a.weighted / a.power, power: a.power})
	}
	sort.Slice(echoes, func(i, j int) bool { return echoes[i].rng < echoes[j].rng })
	if len(echoes) > s.cfg.MaxReturns {
		echoes = echoes[:s.cfg.MaxReturns]
	}
	return echoes
}

// sampleBeam spreads n subrays over the beam cross-section on a golden
// angle spiral with uniform area density.
func sampleBeam(n int, divergence float64) []subray {
	out := make([]subray, n)
	if n == 1 {
		out[0] = subray{sample: 0.5}
		return out
	}
	for k := range out {
		out[k] = subray{
			angle:  math.Sqrt((float64(k)+0.5)/float64(n)) * divergence / 2,
			theta:  float64(k) * goldenAngle,
			sample: frac((float64(k) + 0.5) * goldenFrac),
		}
	}
	return out
}

func orthoBasis(dir geom.Vec3) (u, v geom.Vec3) {
	ref := geom.Vec3{Z: 1}
	if math.Abs(dir.Z) > 0.9 {
		ref = geom.Vec3{X: 1}
	}
	u = dir.Cross(ref).Normalize()
	v = dir.Cross(u)
	return u, v
}

func frac(x float64) float64 { return x - math.Floor(x) }
