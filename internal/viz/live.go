package viz

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/sim"
)

const (
	canvasWidth     = 60
	canvasHeight    = 20
	pollInterval    = time.Second / 10
	historyCapacity = 120
)

// Controller is the part of a simulation the live view drives.
type Controller interface {
	Pause(bool)
	Stop()
	State() sim.RunState
	SetSimSpeedFactor(float64) float64
	SpeedFactor() float64
	Steps() int64
	CurrentLeg() int
	LegsCompleted() int
	GPSTime() float64
}

// Feed keeps the most recent delivered records for display. Consume is
// meant to be registered as (part of) the simulation callback.
type Feed struct {
	mu           sync.Mutex
	capacity     int
	points       []geom.Vec3
	intensities  []float64
	track        []geom.Vec3
	measurements int64
	trajectories int64
}

func NewFeed(capacity int) *Feed {
	return &Feed{capacity: capacity}
}

func (f *Feed) Consume(b sim.Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range b.Measurements {
		f.points = appendRing(f.points, m.Position, f.capacity)
		f.intensities = appendRing(f.intensities, m.Intensity, f.capacity)
	}
	for _, t := range b.Trajectories {
		f.track = appendRing(f.track, t.Position, f.capacity)
	}
	f.measurements += int64(len(b.Measurements))
	f.trajectories += int64(len(b.Trajectories))
}

// FeedSnapshot is a copy of the feed at one instant.
type FeedSnapshot struct {
	Points       []geom.Vec3
	Intensities  []float64
	Track        []geom.Vec3
	Measurements int64
	Trajectories int64
}

func (f *Feed) Snapshot() FeedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedSnapshot{
		Points:       append([]geom.Vec3(nil), f.points...),
		Intensities:  append([]float64(nil), f.intensities...),
		Track:        append([]geom.Vec3(nil), f.track...),
		Measurements: f.measurements,
		Trajectories: f.trajectories,
	}
}

func appendRing[T any](s []T, v T, capacity int) []T {
	s = append(s, v)
	if capacity > 0 && len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}

type tickMsg time.Time

// DoneMsg carries the result of the simulation run.
type DoneMsg struct{ Err error }

// Live is the Bubble Tea model of a running survey.
type Live struct {
	ctrl      Controller
	feed      *Feed
	run       func() error
	title     string
	totalLegs int

	canvas   *Canvas
	camera   *Camera
	orbit    bool
	snap     FeedSnapshot
	rate     []float64
	lastSeen int64
	lastPoll time.Time

	done     bool
	quitting bool
	err      error
}

// NewLive returns a model that starts run in the background and polls ctrl
// until it finishes. run normally wraps Simulation.Start.
func NewLive(ctrl Controller, feed *Feed, run func() error, title string, totalLegs int) Live {
	return Live{
		ctrl:      ctrl,
		feed:      feed,
		run:       run,
		title:     title,
		totalLegs: totalLegs,
		canvas:    NewCanvas(canvasWidth, canvasHeight),
		camera:    NewCamera(),
		rate:      make([]float64, 0, historyCapacity),
	}
}

// Err returns the run error once the model has received it.
func (m Live) Err() error { return m.err }

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Live) Init() tea.Cmd {
	run := m.run
	return tea.Batch(tick(), func() tea.Msg { return DoneMsg{Err: run()} })
}

func (m Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case tickMsg:
		m.poll(time.Time(msg))
		if m.done {
			return m, nil
		}
		return m, tick()
	case DoneMsg:
		m.done, m.err = true, msg.Err
		m.poll(time.Now())
		if m.quitting {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Live) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		if m.done {
			return m, tea.Quit
		}
		m.quitting = true
		m.ctrl.Stop()
	case "p", " ":
		m.ctrl.Pause(m.ctrl.State() != sim.StatePaused)
	case "+", "=":
		m.ctrl.SetSimSpeedFactor(m.ctrl.SpeedFactor() * 2)
	case "-", "_":
		m.ctrl.SetSimSpeedFactor(m.ctrl.SpeedFactor() / 2)
	case "v":
		m.orbit = !m.orbit
	case "left":
		m.camera.Orbit(-0.1, 0)
	case "right":
		m.camera.Orbit(0.1, 0)
	case "up":
		m.camera.Orbit(0, 0.1)
	case "down":
		m.camera.Orbit(0, -0.1)
	case "z":
		m.camera.ZoomIn()
	case "Z":
		m.camera.ZoomOut()
	}
	return m, nil
}

// poll refreshes the snapshot and the delivered-returns rate history.
func (m *Live) poll(now time.Time) {
	m.snap = m.feed.Snapshot()
	if !m.lastPoll.IsZero() {
		if dt := now.Sub(m.lastPoll).Seconds(); dt > 0 {
			m.rate = appendRing(m.rate, float64(m.snap.Measurements-m.lastSeen)/dt, historyCapacity)
		}
	}
	m.lastSeen, m.lastPoll = m.snap.Measurements, now
}

func (m Live) status() string {
	switch {
	case m.done && m.err != nil:
		return errorStyle.Render("FAILED")
	case m.done:
		return statusFinished.Render("FINISHED")
	case m.quitting:
		return statusPaused.Render("STOPPING")
	case m.ctrl.State() == sim.StatePaused:
		return statusPaused.Render("PAUSED")
	}
	return statusRunning.Render("RUNNING")
}

func (m Live) View() string {
	m.canvas.Clear()
	if m.orbit {
		RenderCloud(m.canvas, m.snap.Points, m.camera)
	} else {
		RenderMap(m.canvas, m.snap.Points, m.snap.Track)
	}
	view := "map"
	if m.orbit {
		view = "orbit"
	}
	left := panelStyle.Render(titleStyle.Render(fmt.Sprintf("returns (%s)", view)) + "\n" +
		cloudStyle.Render(m.canvas.String()))

	var s strings.Builder
	s.WriteString(titleStyle.Render(strings.ToUpper(m.title)) + "  " + m.status() + "\n\n")
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Steps", fmt.Sprintf("%d", m.ctrl.Steps()))
	row("Leg", fmt.Sprintf("%d / %d", m.ctrl.CurrentLeg()+1, m.totalLegs))
	row("GPS TOW", FormatGPSTime(m.ctrl.GPSTime()))
	row("Speed", fmt.Sprintf("x%g", m.ctrl.SpeedFactor()))
	row("Returns", fmt.Sprintf("%d", m.snap.Measurements))
	row("Trajectory", fmt.Sprintf("%d", m.snap.Trajectories))

	progress := 0.0
	if m.totalLegs > 0 {
		progress = float64(m.ctrl.LegsCompleted()) / float64(m.totalLegs)
	}
	s.WriteString("\n" + labelStyle.Render("Survey") + ProgressBar(progress, 20) + "\n")
	s.WriteString(labelStyle.Render("Intensity") + Sparkline(m.snap.Intensities, 20) + "\n")

	if len(m.rate) > 1 && !allZero(m.rate) {
		chart := asciigraph.Plot(m.rate,
			asciigraph.Height(5),
			asciigraph.Width(30),
			asciigraph.Caption("returns/s"),
		)
		s.WriteString("\n" + chart + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + keyHint.Render("p:pause +/-:speed v:view ←→↑↓:orbit q:quit"))

	right := panelStyle.Render(s.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func allZero(vs []float64) bool {
	for _, v := range vs {
		if v != 0 && !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// FormatGPSTime renders a time-of-week in nanoseconds as days and clock
// time within the GPS week.
func FormatGPSTime(ns float64) string {
	sec := ns / 1e9
	days := int(sec / 86400)
	rem := time.Duration((sec - float64(days)*86400) * float64(time.Second))
	return fmt.Sprintf("day %d %02d:%02d:%06.3f", days,
		int(rem.Hours()), int(rem.Minutes())%60, math.Mod(rem.Seconds(), 60))
}
