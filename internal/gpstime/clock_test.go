package gpstime

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/lidarsim/internal/logging"
)

func TestParseStart(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"posix literal", "1600000000", 1600000000},
		{"gps epoch", "315964809", 315964809},
		{"datetime", "2020-01-06 00:00:00", 1578268800},
		{"datetime with seconds", "1980-01-06 00:00:09", 315964809},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStart(tt.in)
			if err != nil {
				t.Fatalf("ParseStart(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseStart(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStartEmptyUsesWallClock(t *testing.T) {
	before := time.Now().Unix()
	got, err := ParseStart("")
	after := time.Now().Unix()
	if err != nil {
		t.Fatalf("ParseStart(\"\"): %v", err)
	}
	if got < before || got > after {
		t.Errorf("ParseStart(\"\") = %d, want within [%d, %d]", got, before, after)
	}
}

func TestParseStartInvalid(t *testing.T) {
	for _, in := range []string{"not-a-date", "2020-01-06", "2020/01/06 00:00:00", "12:00", "1.5e9"} {
		if _, err := ParseStart(in); !errors.Is(err, ErrInvalidStart) {
			t.Errorf("ParseStart(%q) err = %v, want ErrInvalidStart", in, err)
		}
	}
}

func TestNewLogsInvalidStart(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Output: &buf})

	clock, err := New("not-a-date", log)
	if !errors.Is(err, ErrInvalidStart) {
		t.Fatalf("New err = %v, want ErrInvalidStart", err)
	}
	if clock != nil {
		t.Error("expected nil clock on parse failure")
	}

	out := buf.String()
	if !strings.Contains(out, "not-a-date") {
		t.Errorf("log does not contain the offending input: %q", out)
	}
	if !strings.Contains(out, "YYYY-MM-DD hh:mm:ss") {
		t.Errorf("log does not name the accepted formats: %q", out)
	}
}

func TestNewResolvesTimeOfWeek(t *testing.T) {
	// 2020-01-06 00:00:00 UTC is a GPS week boundary shifted by the 9s offset.
	clock, err := New("2020-01-06 00:00:00", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := float64((1578268800-EpochOffset)%WeekSeconds) * 1e9
	if clock.Now() != want {
		t.Errorf("Now() = %v, want %v", clock.Now(), want)
	}
	if clock.Origin() != 1578268800 {
		t.Errorf("Origin() = %d", clock.Origin())
	}
}

func TestTimeOfWeekRange(t *testing.T) {
	for _, posix := range []int64{0, EpochOffset, EpochOffset - 1, 1e9, 1.7e9, 4e9} {
		got := TimeOfWeek(posix)
		if got < 0 || got >= WeekNs {
			t.Errorf("TimeOfWeek(%d) = %v out of [0, week)", posix, got)
		}
	}
	if got := TimeOfWeek(EpochOffset); got != 0 {
		t.Errorf("TimeOfWeek(epoch) = %v, want 0", got)
	}
}

func TestAdvanceWrapsAtWeekBoundary(t *testing.T) {
	clock, err := New("0", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock.Set(604799.999999999e9)
	clock.SetStepNs(2)

	got := clock.Advance()
	if math.Abs(got-1) > 1e-3 {
		t.Errorf("Advance across boundary = %v ns, want ~1", got)
	}
}

func TestAdvanceStaysInWeek(t *testing.T) {
	clock, err := New("1700000000", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock.SetStepPeriod(3600 * 7)

	for i := 0; i < 1000; i++ {
		ns := clock.Advance()
		if ns < 0 || ns >= WeekNs {
			t.Fatalf("step %d: time %v out of week", i, ns)
		}
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{WeekNs, 0},
		{WeekNs + 5, 5},
		{-5, WeekNs - 5},
	}
	for _, tt := range tests {
		if got := Wrap(tt.in); got != tt.want {
			t.Errorf("Wrap(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
