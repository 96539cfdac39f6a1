package survey

import "math"

// RotatingHead turns the scanner about the vertical axis. A leg's sweep is
// complete once the configured range has been covered; a zero range is
// always complete.
type RotatingHead struct {
	angle   float64
	rotated float64
	rng     float64
	rate    float64
	freq    float64
	step    float64
}

// Configure resets the head for a new leg.
func (h *RotatingHead) Configure(start, rng, rate float64) {
	h.angle = start
	h.rotated = 0
	h.rng = math.Abs(rng)
	h.rate = rate
	if h.freq > 0 {
		h.step = rate / h.freq
	}
}

func (h *RotatingHead) PrepareSimulation(pulseFreqHz float64) {
	h.freq = pulseFreqHz
	h.step = h.rate / pulseFreqHz
}

func (h *RotatingHead) DoSimStep() {
	if h.RotateCompleted() {
		return
	}
	h.angle = math.Mod(h.angle+h.step, 2*math.Pi)
	h.rotated += math.Abs(h.step)
}

func (h *RotatingHead) RotateCompleted() bool {
	return h.rng == 0 || h.rotated >= h.rng
}

func (h *RotatingHead) Angle() float64 { return h.angle }

// OscillatingDeflector swings the beam between -ScanAngle and +ScanAngle
// ScanFreq times per second.
type OscillatingDeflector struct {
	ScanAngle float64 // half field of view, radians
	ScanFreq  float64 // Hz

	angle float64
	step  float64
}

func (d *OscillatingDeflector) PrepareSimulation(pulseFreqHz float64) {
	d.angle = -d.ScanAngle
	d.step = 4 * d.ScanAngle * d.ScanFreq / pulseFreqHz
}

func (d *OscillatingDeflector) DoSimStep() {
	if d.ScanAngle == 0 {
		return
	}
	d.angle += d.step
	if d.angle > d.ScanAngle {
		d.angle = 2*d.ScanAngle - d.angle
		d.step = -d.step
	} else if d.angle < -d.ScanAngle {
		d.angle = -2*d.ScanAngle - d.angle
		d.step = -d.step
	}
	d.angle = math.Max(-d.ScanAngle, math.Min(d.ScanAngle, d.angle))
}

func (d *OscillatingDeflector) Angle() float64 { return d.angle }
