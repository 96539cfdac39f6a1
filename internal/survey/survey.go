// Package survey provides the reference collaborators a simulation drives:
// a linear platform, a rotating scanner head with an oscillating deflector,
// a layered ground scene and the scanner that evaluates pulses against it.
package survey

import (
	"errors"
	"fmt"

	"github.com/san-kum/lidarsim/internal/geom"
)

var (
	// ErrLegIndex indicates a leg index outside the survey.
	ErrLegIndex = errors.New("survey: leg index out of range")

	// ErrNoLegs indicates a survey without legs was played back.
	ErrNoLegs = errors.New("survey: no legs")
)

// PlatformSettings is where the platform is at the start of a leg and how
// fast it moves toward the next one.
type PlatformSettings struct {
	Position geom.Vec3
	Speed    float64 // m/s
}

// ScannerSettings configures the scanner for one leg.
type ScannerSettings struct {
	Active          bool
	HeadRotateStart float64 // radians
	HeadRotateRange float64 // radians, 0 means no rotation sweep
	HeadRotateRate  float64 // radians per second
}

type Leg struct {
	Platform PlatformSettings
	Scanner  ScannerSettings
	length   float64
}

// Length is the distance to the next leg, set by Survey.CalculateLength.
func (l *Leg) Length() float64 { return l.length }

// Survey is an ordered list of legs flown with one scanner.
type Survey struct {
	Name           string
	NumRuns        int
	SimSpeedFactor float64
	Legs           []*Leg
	length         float64
}

func New(name string) *Survey {
	return &Survey{Name: name, NumRuns: 1, SimSpeedFactor: 1}
}

// AddLeg inserts leg at index. A leg already in the survey is ignored.
func (s *Survey) AddLeg(index int, leg *Leg) error {
	for _, l := range s.Legs {
		if l == leg {
			return nil
		}
	}
	if index < 0 || index > len(s.Legs) {
		return fmt.Errorf("%w: %d", ErrLegIndex, index)
	}
	s.Legs = append(s.Legs, nil)
	copy(s.Legs[index+1:], s.Legs[index:])
	s.Legs[index] = leg
	return nil
}

func (s *Survey) RemoveLeg(index int) error {
	if index < 0 || index >= len(s.Legs) {
		return fmt.Errorf("%w: %d", ErrLegIndex, index)
	}
	s.Legs = append(s.Legs[:index], s.Legs[index+1:]...)
	return nil
}

// CalculateLength sets each leg's length to the distance to the following
// leg and the survey length to their sum.
func (s *Survey) CalculateLength() {
	s.length = 0
	for i, l := range s.Legs {
		l.length = 0
		if i+1 < len(s.Legs) {
			l.length = l.Platform.Position.Distance(s.Legs[i+1].Platform.Position)
		}
		s.length += l.length
	}
}

func (s *Survey) Length() float64 { return s.length }

// Clone returns a survey with copies of every leg.
func (s *Survey) Clone() *Survey {
	c := *s
	c.Legs = make([]*Leg, len(s.Legs))
	for i, l := range s.Legs {
		leg := *l
		c.Legs[i] = &leg
	}
	return &c
}
