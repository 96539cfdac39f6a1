package survey

import (
	"context"

	"github.com/san-kum/lidarsim/internal/logging"
)

// Playback flies a survey leg by leg. It is the simulation's leg planner:
// each completed leg configures the platform and scanner for the next one.
type Playback struct {
	survey  *Survey
	scanner *Scanner
	log     logging.Logger
}

// NewPlayback configures the scanner for the first leg of s.
func NewPlayback(s *Survey, sc *Scanner, log logging.Logger) (*Playback, error) {
	if len(s.Legs) == 0 {
		return nil, ErrNoLegs
	}
	s.CalculateLength()
	p := &Playback{survey: s, scanner: sc, log: logging.OrNoop(log)}
	p.apply(0)
	return p, nil
}

func (p *Playback) Survey() *Survey { return p.survey }

// NextLeg starts the leg after completed, or reports that the survey is
// done.
func (p *Playback) NextLeg(completed int) (int, bool, error) {
	next := completed + 1
	if next >= len(p.survey.Legs) {
		p.log.Info(context.Background(), "survey complete",
			logging.String("survey", p.survey.Name),
			logging.Int("legs", len(p.survey.Legs)),
			logging.Float("length_m", p.survey.Length()),
		)
		return 0, false, nil
	}
	p.apply(next)
	p.log.Info(context.Background(), "leg started",
		logging.Int("leg", next),
		logging.Bool("active", p.survey.Legs[next].Scanner.Active),
		logging.Float("length_m", p.survey.Legs[next].Length()),
	)
	return next, true, nil
}

// apply places the platform on leg i heading for the next leg. A static
// leg (no speed) stays on its own position for the whole leg.
func (p *Playback) apply(i int) {
	legs := p.survey.Legs
	leg := legs[i]

	target := leg.Platform.Position
	if leg.Platform.Speed > 0 && i+1 < len(legs) {
		target = legs[i+1].Platform.Position
	}
	p.scanner.platform.Configure(leg.Platform.Position, target, leg.Platform.Speed)

	st := leg.Scanner
	p.scanner.head.Configure(st.HeadRotateStart, st.HeadRotateRange, st.HeadRotateRate)
	p.scanner.SetActive(st.Active)
}
