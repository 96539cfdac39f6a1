package survey

import (
	"errors"
	"math"

	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/sim"
)

// LinearPlatform flies straight toward its waypoint at constant speed.
type LinearPlatform struct {
	position geom.Vec3
	target   geom.Vec3
	speed    float64
	heading  float64
	freq     float64
	stepDist float64
	reached  bool
	scene    *Scene
}

func NewLinearPlatform(scene *Scene) *LinearPlatform {
	return &LinearPlatform{scene: scene, reached: true}
}

// Configure places the platform at start heading for target.
func (p *LinearPlatform) Configure(start, target geom.Vec3, speed float64) {
	p.position = start
	p.speed = speed
	if p.freq > 0 {
		p.stepDist = speed / p.freq
	}
	p.SetTarget(target)
}

// SetTarget changes the waypoint without moving the platform.
func (p *LinearPlatform) SetTarget(target geom.Vec3) {
	p.target = target
	d := target.Sub(p.position)
	p.reached = d.Norm() == 0
	if !p.reached {
		p.heading = math.Atan2(d.Y, d.X)
	}
}

func (p *LinearPlatform) PrepareSimulation(pulseFreqHz float64) error {
	if !p.reached && !(p.speed > 0) {
		return errors.New("survey: platform speed must be positive")
	}
	p.freq = pulseFreqHz
	p.stepDist = p.speed / pulseFreqHz
	return nil
}

// DoSimStep moves one step toward the waypoint, snapping onto it when the
// remaining distance is shorter than a step.
func (p *LinearPlatform) DoSimStep(float64) error {
	if p.reached {
		return nil
	}
	d := p.target.Sub(p.position)
	dist := d.Norm()
	if dist <= p.stepDist {
		p.position = p.target
		p.reached = true
		return nil
	}
	p.position = p.position.Add(d.Scale(p.stepDist / dist))
	return nil
}

func (p *LinearPlatform) WaypointReached() bool { return p.reached }
func (p *LinearPlatform) Scene() sim.Scene      { return p.scene }
func (p *LinearPlatform) Position() geom.Vec3   { return p.position }
func (p *LinearPlatform) Heading() float64      { return p.heading }
