package viz

import (
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/sim"
)

func TestCanvasSetAndLine(t *testing.T) {
	c := NewCanvas(4, 2)
	if w, h := c.Dots(); w != 8 || h != 8 {
		t.Fatalf("Dots() = %d, %d", w, h)
	}

	c.Set(0, 0)
	c.Set(-1, 3)
	c.Set(100, 100)
	if !c.Lit(0, 0) || c.Lit(1, 0) {
		t.Error("unexpected dot state after Set")
	}

	c.DrawLine(0, 7, 7, 7)
	for x := 0; x < 8; x++ {
		if !c.Lit(x, 7) {
			t.Errorf("dot (%d, 7) not on the line", x)
		}
	}

	c.Clear()
	if c.Lit(0, 0) {
		t.Error("Clear left dots set")
	}
	if got := strings.Count(c.String(), "\n"); got != 2 {
		t.Errorf("String() has %d rows, want 2", got)
	}
}

func TestViewportCorners(t *testing.T) {
	c := NewCanvas(10, 5)
	vp := Viewport{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	w, h := c.Dots()

	if x, y := vp.Dot(c, geom.Vec3{X: 0, Y: 10}); x != 0 || y != 0 {
		t.Errorf("north-west corner at (%d, %d)", x, y)
	}
	if x, y := vp.Dot(c, geom.Vec3{X: 10, Y: 0}); x != w-1 || y != h-1 {
		t.Errorf("south-east corner at (%d, %d)", x, y)
	}

	fit := FitViewport(geom.Vec3{X: -5, Y: 0}, geom.Vec3{X: 5, Y: 2})
	if fit.MinX > -5 || fit.MaxX < 5 || fit.MaxY-fit.MinY != fit.MaxX-fit.MinX {
		t.Errorf("FitViewport = %+v", fit)
	}
}

func TestRenderCloudDrawsPoints(t *testing.T) {
	c := NewCanvas(20, 10)
	pts := []geom.Vec3{{X: 0}, {X: 10}, {Y: 10}, {Z: 5}}
	RenderCloud(c, pts, NewCamera())

	w, h := c.Dots()
	lit := 0
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if c.Lit(x, y) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("no points rendered")
	}
}

func TestFeedKeepsMostRecent(t *testing.T) {
	f := NewFeed(3)
	for i := 0; i < 5; i++ {
		f.Consume(sim.Batch{
			Measurements: []sim.Measurement{{Position: geom.Vec3{X: float64(i)}, Intensity: float64(i)}},
			Trajectories: []sim.Trajectory{{}},
		})
	}

	snap := f.Snapshot()
	if snap.Measurements != 5 || snap.Trajectories != 5 {
		t.Errorf("counts = %d/%d, want 5/5", snap.Measurements, snap.Trajectories)
	}
	if len(snap.Points) != 3 || snap.Points[0].X != 2 || snap.Points[2].X != 4 {
		t.Errorf("points = %v, want the last three", snap.Points)
	}
	if len(snap.Track) != 3 {
		t.Errorf("track length = %d, want 3", len(snap.Track))
	}
}

type fakeController struct {
	mu      sync.Mutex
	state   sim.RunState
	speed   float64
	stopped bool
}

func (c *fakeController) Pause(p bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p {
		c.state = sim.StatePaused
	} else {
		c.state = sim.StateRunning
	}
}

func (c *fakeController) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *fakeController) State() sim.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) SetSimSpeedFactor(f float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = sim.ClampSpeedFactor(f)
	return c.speed
}

func (c *fakeController) SpeedFactor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *fakeController) Steps() int64       { return 42 }
func (c *fakeController) CurrentLeg() int    { return 0 }
func (c *fakeController) LegsCompleted() int { return 1 }
func (c *fakeController) GPSTime() float64   { return 3600e9 }

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestLive() (Live, *fakeController) {
	ctrl := &fakeController{speed: 1}
	return NewLive(ctrl, NewFeed(10), func() error { return nil }, "test survey", 2), ctrl
}

func TestLiveKeys(t *testing.T) {
	m, ctrl := newTestLive()

	next, _ := m.Update(key("p"))
	if ctrl.State() != sim.StatePaused {
		t.Error("p did not pause")
	}
	next, _ = next.Update(key(" "))
	if ctrl.State() != sim.StateRunning {
		t.Error("space did not resume")
	}

	next, _ = next.Update(key("+"))
	if ctrl.SpeedFactor() != 2 {
		t.Errorf("speed after + = %v, want 2", ctrl.SpeedFactor())
	}
	next, _ = next.Update(key("-"))
	next, _ = next.Update(key("-"))
	if ctrl.SpeedFactor() != 0.5 {
		t.Errorf("speed after -- = %v, want 0.5", ctrl.SpeedFactor())
	}

	next, _ = next.Update(key("v"))
	if !next.(Live).orbit {
		t.Error("v did not switch to orbit view")
	}
}

func TestLiveQuitWaitsForRun(t *testing.T) {
	m, ctrl := newTestLive()

	next, cmd := m.Update(key("q"))
	if !ctrl.stopped {
		t.Fatal("q did not stop the simulation")
	}
	if cmd != nil {
		t.Error("quit before the run returned")
	}

	runErr := errors.New("boom")
	next, cmd = next.Update(DoneMsg{Err: runErr})
	if cmd == nil {
		t.Fatal("expected quit once the run returned")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !errors.Is(next.(Live).Err(), runErr) {
		t.Errorf("Err() = %v, want %v", next.(Live).Err(), runErr)
	}
}

func TestLiveStaysAfterRunUntilQuit(t *testing.T) {
	m, _ := newTestLive()

	next, cmd := m.Update(DoneMsg{})
	if cmd != nil {
		t.Error("model quit on its own after the run")
	}
	if !strings.Contains(next.View(), "FINISHED") {
		t.Error("view does not report the finished run")
	}
	_, cmd = next.Update(key("q"))
	if cmd == nil {
		t.Fatal("q after the run should quit")
	}
}

func TestLiveView(t *testing.T) {
	m, _ := newTestLive()
	m.feed.Consume(sim.Batch{Measurements: []sim.Measurement{
		{Position: geom.Vec3{X: 1, Y: 1}, Intensity: 1e-7},
		{Position: geom.Vec3{X: 5, Y: 3}, Intensity: 2e-7},
	}})
	next, _ := m.Update(tickMsg{})

	view := next.View()
	for _, want := range []string{"TEST SURVEY", "RUNNING", "42", "1 / 2", "day 0 01:00:00.000"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
