package sim

import (
	"errors"
	"fmt"
)

// Controller errors.
var (
	// ErrNoScanner indicates a run was prepared or started without a scanner.
	ErrNoScanner = errors.New("sim: no scanner set")

	// ErrNotPrepared indicates a step was requested before PrepareSimulation.
	ErrNotPrepared = errors.New("sim: simulation not prepared")

	// ErrFinished indicates Start was called on a run that already finished.
	ErrFinished = errors.New("sim: simulation already finished")

	// ErrStarted indicates Start was called while a run is in progress.
	ErrStarted = errors.New("sim: simulation already started")

	// ErrInvalidFrequency indicates the scanner reported a non-positive pulse frequency.
	ErrInvalidFrequency = errors.New("sim: pulse frequency must be positive")
)

// SimulationError wraps a collaborator failure with the step it happened in.
type SimulationError struct {
	Step      int64
	Leg       int
	GPSTimeNs float64
	Wrapped   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("sim: step %d (leg %d): %v", e.Step, e.Leg, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
