package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the Prometheus metrics emitted by a simulation run.
// All methods are safe to call on a nil collector.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Steps         prometheus.Counter
	LegsCompleted prometheus.Counter
	Callbacks     prometheus.Counter
	BatchSize     prometheus.Histogram
	StepDuration  prometheus.Histogram
	Pulses        prometheus.Counter
	Returns       prometheus.Counter
	ReceivedPower prometheus.Histogram
	SpeedFactor   prometheus.Gauge
	Paused        prometheus.Gauge
	CurrentLeg    prometheus.Gauge
}

// NewSimCollector registers simulation metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimCollector{gatherer: gatherer}
	var err error

	if c.Steps, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lidarsim_steps_total",
		Help: "Simulation steps executed, including leg-completion steps.",
	}), "lidarsim_steps_total"); err != nil {
		return nil, err
	}
	if c.LegsCompleted, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lidarsim_legs_completed_total",
		Help: "Survey legs completed.",
	}), "lidarsim_legs_completed_total"); err != nil {
		return nil, err
	}
	if c.Callbacks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lidarsim_callbacks_total",
		Help: "Output callback deliveries, periodic and terminal.",
	}), "lidarsim_callbacks_total"); err != nil {
		return nil, err
	}
	if c.BatchSize, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lidarsim_callback_batch_size",
		Help:    "Measurements delivered per callback.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}), "lidarsim_callback_batch_size"); err != nil {
		return nil, err
	}
	if c.StepDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lidarsim_step_duration_seconds",
		Help:    "Wall-clock duration of one simulation step.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}), "lidarsim_step_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Pulses, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lidarsim_pulses_total",
		Help: "Laser pulses evaluated.",
	}), "lidarsim_pulses_total"); err != nil {
		return nil, err
	}
	if c.Returns, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lidarsim_returns_total",
		Help: "Detected returns above the detector threshold.",
	}), "lidarsim_returns_total"); err != nil {
		return nil, err
	}
	if c.ReceivedPower, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lidarsim_received_power_watts",
		Help:    "Received power of detected returns.",
		Buckets: prometheus.ExponentialBuckets(1e-12, 10, 12),
	}), "lidarsim_received_power_watts"); err != nil {
		return nil, err
	}
	if c.SpeedFactor, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lidarsim_speed_factor",
		Help: "Effective simulation speed factor.",
	}), "lidarsim_speed_factor"); err != nil {
		return nil, err
	}
	if c.Paused, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lidarsim_paused",
		Help: "1 while the simulation is paused.",
	}), "lidarsim_paused"); err != nil {
		return nil, err
	}
	if c.CurrentLeg, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lidarsim_current_leg",
		Help: "Index of the leg being scanned.",
	}), "lidarsim_current_leg"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStep counts a step and records its wall-clock duration.
func (c *SimCollector) ObserveStep(d time.Duration) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.StepDuration.Observe(d.Seconds())
}

// LegCompleted counts a finished leg and publishes the next leg index.
func (c *SimCollector) LegCompleted(next int) {
	if c == nil {
		return
	}
	c.LegsCompleted.Inc()
	c.CurrentLeg.Set(float64(next))
}

// ObserveCallback counts a delivery of n measurements.
func (c *SimCollector) ObserveCallback(n int) {
	if c == nil {
		return
	}
	c.Callbacks.Inc()
	c.BatchSize.Observe(float64(n))
}

// ObservePulse counts one pulse and the received powers of its returns.
func (c *SimCollector) ObservePulse(returnPowers ...float64) {
	if c == nil {
		return
	}
	c.Pulses.Inc()
	for _, p := range returnPowers {
		c.Returns.Inc()
		c.ReceivedPower.Observe(p)
	}
}

// SetSpeedFactor publishes the effective speed factor.
func (c *SimCollector) SetSpeedFactor(f float64) {
	if c == nil {
		return
	}
	c.SpeedFactor.Set(f)
}

// SetPaused publishes the pause flag.
func (c *SimCollector) SetPaused(paused bool) {
	if c == nil {
		return
	}
	v := 0.0
	if paused {
		v = 1
	}
	c.Paused.Set(v)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
