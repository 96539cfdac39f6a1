// Package viz renders a running simulation in the terminal.
//
// [Live] is a Bubble Tea model that polls a simulation controller and draws
// the most recent returns on a braille [Canvas], either as a top-down map or
// through an orbiting [Camera].
//
// # Key Bindings
//
//	p / Space - Pause/Resume
//	+ / -     - Double/halve the speed factor
//	v         - Toggle map and orbit view
//	← → ↑ ↓   - Orbit the camera
//	q         - Stop the run and quit
package viz
