package sim

import (
	"context"

	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/pulse"
)

// Measurement is one detected return of a pulse.
type Measurement struct {
	Leg           int
	PulseIndex    int64
	ReturnNumber  int
	Position      geom.Vec3
	BeamOrigin    geom.Vec3
	BeamDirection geom.Vec3
	Range         float64
	Intensity     float64 // received power in watts
	GPSTimeNs     float64
}

// Trajectory is one sample of the platform pose.
type Trajectory struct {
	GPSTimeNs float64
	Position  geom.Vec3
	Heading   float64 // radians, counter-clockwise from +X
}

// Batch is what a callback receives: everything recorded since the
// previous delivery.
type Batch struct {
	Measurements []Measurement
	Trajectories []Trajectory
	OutputPath   string // empty unless file export is enabled
}

// Callback consumes a drained batch. It runs on the simulation goroutine
// outside any buffer lock.
type Callback func(Batch)

// Recorder accepts measurement and trajectory records. Implementations must
// be safe for concurrent use by pulse workers.
type Recorder interface {
	RecordMeasurement(m Measurement)
	RecordTrajectory(t Trajectory)
}

type Scene interface {
	PrepareSimulation(freqHz float64) error
	DoSimStep() error
}

type Platform interface {
	PrepareSimulation(pulseFreqHz float64) error
	DoSimStep(pulseFreqHz float64) error
	WaypointReached() bool
	Scene() Scene
}

type ScannerHead interface {
	RotateCompleted() bool
}

type Scanner interface {
	PrepareSimulation(rec Recorder) error
	BuildScanningPulseProcess(strategy pulse.Strategy, d *pulse.Dispatcher, pool *pulse.WorkerPool) error
	PulseFreqHz() float64
	Head(leg int) ScannerHead
	DoSimStep(ctx context.Context, leg int, gpsTimeNs float64) error
	OnSimulationFinished() error
	Platform() Platform
	OutputPath() string
}

// LegPlanner chooses the leg that follows a completed one. ok is false when
// the survey has no further legs.
type LegPlanner interface {
	NextLeg(completed int) (next int, ok bool, err error)
}
