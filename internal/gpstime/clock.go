// Package gpstime keeps simulated time as a nanosecond offset into the
// current GPS week.
package gpstime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/lidarsim/internal/logging"
)

const (
	// WeekSeconds is the length of one GPS week.
	WeekSeconds = 604800
	// WeekNs is the length of one GPS week in nanoseconds.
	WeekNs = float64(WeekSeconds) * 1e9
	// EpochOffset is the difference in seconds between the POSIX epoch
	// (1970-01-01) and the GPS epoch (1980-01-06) used by the survey clock.
	EpochOffset = 315964809
	// DateTimeLayout is the only accepted literal date-time format.
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ErrInvalidStart indicates a fixed start value that is neither a
// POSIX timestamp nor a "YYYY-MM-DD hh:mm:ss" literal.
var ErrInvalidStart = errors.New("gpstime: invalid GPS start time")

const acceptedFormats = `a POSIX timestamp, an empty string, or a datetime with EXACT format "YYYY-MM-DD hh:mm:ss"`

// Clock tracks GPS time-of-week in nanoseconds. It is safe for concurrent
// readers while the simulation goroutine advances it.
type Clock struct {
	mu     sync.RWMutex
	origin int64
	now    float64
	step   float64
}

// New resolves the time origin from fixedStart and returns a clock
// positioned at the corresponding time-of-week. A malformed fixedStart is
// logged with the accepted formats and returned as an error wrapping
// ErrInvalidStart.
func New(fixedStart string, log logging.Logger) (*Clock, error) {
	log = logging.OrNoop(log)

	posix, err := ParseStart(fixedStart)
	if err != nil {
		log.Error(context.Background(), "provided GPS start time is invalid",
			logging.String("input", fixedStart),
			logging.String("accepted_formats", acceptedFormats),
		)
		return nil, err
	}

	return &Clock{
		origin: posix,
		now:    TimeOfWeek(posix),
	}, nil
}

// ParseStart resolves a fixed start value to POSIX seconds. An
// empty value yields the current wall-clock time; a value containing ':' is
// parsed as DateTimeLayout in UTC; anything else must be a base-10 integer.
func ParseStart(value string) (int64, error) {
	if value == "" {
		return time.Now().Unix(), nil
	}
	if strings.Contains(value, ":") {
		t, err := time.ParseInLocation(DateTimeLayout, value, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("%w %q: %v", ErrInvalidStart, value, err)
		}
		return t.Unix(), nil
	}
	posix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidStart, value, err)
	}
	return posix, nil
}

// TimeOfWeek converts POSIX seconds to nanoseconds since the start of the
// GPS week.
func TimeOfWeek(posix int64) float64 {
	sec := (posix - EpochOffset) % WeekSeconds
	if sec < 0 {
		sec += WeekSeconds
	}
	return float64(sec) * 1e9
}

// Wrap folds any nanosecond value into [0, WeekNs).
func Wrap(ns float64) float64 {
	ns = math.Mod(ns, WeekNs)
	if ns < 0 {
		ns += WeekNs
	}
	return ns
}

// Origin returns the resolved start time in POSIX seconds.
func (c *Clock) Origin() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

// Now returns the current time-of-week in nanoseconds.
func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to ns, folded into the current week.
func (c *Clock) Set(ns float64) {
	c.mu.Lock()
	c.now = Wrap(ns)
	c.mu.Unlock()
}

// Step returns the per-step advance in nanoseconds.
func (c *Clock) Step() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// SetStepPeriod sets the per-step advance from a step period in seconds.
func (c *Clock) SetStepPeriod(seconds float64) {
	c.SetStepNs(1e9 * seconds)
}

// SetStepNs sets the per-step advance in nanoseconds. The step must be
// shorter than one week.
func (c *Clock) SetStepNs(ns float64) {
	c.mu.Lock()
	c.step = ns
	c.mu.Unlock()
}

// Advance moves the clock forward by one step, wrapping at the week
// boundary, and returns the new time.
func (c *Clock) Advance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	if c.now >= WeekNs {
		c.now -= WeekNs
	}
	return c.now
}
