// Package sim drives a LiDAR survey simulation step by step.
//
// The package owns the temporal core of a run and depends on its
// collaborators only through small capability interfaces:
//
//   - [Platform]: moves the sensor carrier toward its current waypoint
//   - [Scanner]: emits pulses for the current leg and records returns
//   - [Scene]: advances dynamic scene geometry
//   - [LegPlanner]: decides what follows a completed leg
//
// A [Simulation] executes steps in strict order (platform, scanner, scene,
// clock) on a single goroutine. Pulse evaluation inside a step may fan out
// across a worker pool but is joined before the step returns.
//
// # Example
//
//	s := sim.New(sim.Options{CallbackFrequency: 100}, log)
//	s.SetScanner(scanner)
//	s.SetCallback(func(b sim.Batch) { write(b.Measurements) })
//	defer s.Close()
//	err := s.Start(ctx)
//
// # Thread Safety
//
// [Simulation.Start] must be called from one goroutine. Pause, Stop,
// SetSimSpeedFactor and the read accessors are safe to call concurrently
// with a running loop.
package sim
