// Package storage persists simulation runs: one directory per run holding
// the delivered measurements, the trajectory and a metadata document.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/sim"
)

const (
	metadataFile     = "metadata.json"
	measurementsFile = "measurements.csv"
	trajectoryFile   = "trajectory.csv"
)

// ErrClosed is returned when writing to a closed run.
var ErrClosed = errors.New("storage: run writer closed")

var (
	measurementHeader = []string{
		"leg", "pulse", "return",
		"x", "y", "z",
		"origin_x", "origin_y", "origin_z",
		"dir_x", "dir_y", "dir_z",
		"range", "intensity", "gps_time_ns",
	}
	trajectoryHeader = []string{"gps_time_ns", "x", "y", "z", "heading"}
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir is the directory holding run runID.
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Survey        string             `json:"survey"`
	Timestamp     time.Time          `json:"timestamp"`
	PulseFreqHz   float64            `json:"pulse_freq_hz"`
	Strategy      string             `json:"strategy"`
	Pacing        string             `json:"pacing"`
	SpeedFactor   float64            `json:"speed_factor"`
	GPSStart      string             `json:"gps_start,omitempty"`
	Legs          int                `json:"legs"`
	LegsCompleted int                `json:"legs_completed"`
	Steps         int64              `json:"steps"`
	Measurements  int64              `json:"measurements"`
	Trajectories  int64              `json:"trajectories"`
	Duration      float64            `json:"duration_seconds"`
	Error         string             `json:"error,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Create allocates a new run directory for survey and opens its data files.
// The survey name is reduced to a single safe path element.
func (s *Store) Create(survey string) (*RunWriter, error) {
	runID := fmt.Sprintf("%s_%s", runName(survey), uuid.NewString()[:8])
	runDir := s.Dir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}

	w := &RunWriter{id: runID, dir: runDir, created: time.Now()}
	var err error
	if w.mFile, w.mCSV, err = createCSV(filepath.Join(runDir, measurementsFile), measurementHeader); err != nil {
		return nil, err
	}
	if w.tFile, w.tCSV, err = createCSV(filepath.Join(runDir, trajectoryFile), trajectoryHeader); err != nil {
		w.mFile.Close()
		return nil, err
	}
	return w, nil
}

// runName keeps letters, digits, '-' and '_' of survey and replaces
// everything else, so a run never lands outside the store.
func runName(survey string) string {
	b := []byte(survey)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "run"
	}
	return string(b)
}

func createCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, w, nil
}

// RunWriter appends delivered batches to a run directory.
type RunWriter struct {
	id      string
	dir     string
	created time.Time

	mu           sync.Mutex
	mFile, tFile *os.File
	mCSV, tCSV   *csv.Writer
	measurements int64
	trajectories int64
	err          error
	closed       bool
}

func (w *RunWriter) ID() string  { return w.id }
func (w *RunWriter) Dir() string { return w.dir }

// Counts returns the number of measurement and trajectory rows written.
func (w *RunWriter) Counts() (measurements, trajectories int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.measurements, w.trajectories
}

// Write appends every record of b.
func (w *RunWriter) Write(b sim.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	for _, m := range b.Measurements {
		if err := w.mCSV.Write(measurementRow(m)); err != nil {
			w.err = err
			return err
		}
	}
	for _, t := range b.Trajectories {
		if err := w.tCSV.Write(trajectoryRow(t)); err != nil {
			w.err = err
			return err
		}
	}
	w.measurements += int64(len(b.Measurements))
	w.trajectories += int64(len(b.Trajectories))
	return nil
}

// Callback adapts Write to a simulation callback. The first write error is
// sticky: later batches are dropped and Close reports it.
func (w *RunWriter) Callback() sim.Callback {
	return func(b sim.Batch) { _ = w.Write(b) }
}

// Close flushes the data files and writes meta, filling in the run
// identity and record counts.
func (w *RunWriter) Close(meta RunMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	w.mCSV.Flush()
	w.tCSV.Flush()
	errs := []error{w.err, w.mCSV.Error(), w.tCSV.Error(), w.mFile.Close(), w.tFile.Close()}

	meta.ID = w.id
	if meta.Timestamp.IsZero() {
		meta.Timestamp = w.created
	}
	meta.Measurements = w.measurements
	meta.Trajectories = w.trajectories
	errs = append(errs, writeJSON(filepath.Join(w.dir, metadataFile), meta))
	return errors.Join(errs...)
}

// Discard closes the data files and removes the run directory. It is for
// runs that failed before the simulation started.
func (w *RunWriter) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	return errors.Join(w.mFile.Close(), w.tFile.Close(), os.RemoveAll(w.dir))
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List returns the metadata of every run, newest first. Directories without
// readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadMeasurements(runID string) ([]sim.Measurement, error) {
	records, err := readCSV(filepath.Join(s.Dir(runID), measurementsFile))
	if err != nil {
		return nil, err
	}

	out := make([]sim.Measurement, 0, len(records))
	for i, r := range records {
		if len(r) != len(measurementHeader) {
			return nil, fmt.Errorf("storage: %s row %d: %d fields", measurementsFile, i+1, len(r))
		}
		leg, err1 := strconv.Atoi(r[0])
		pulse, err2 := strconv.ParseInt(r[1], 10, 64)
		ret, err3 := strconv.Atoi(r[2])
		f, err4 := parseFloats(r[3:])
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, fmt.Errorf("storage: %s row %d: %w", measurementsFile, i+1, err)
		}
		out = append(out, sim.Measurement{
			Leg:           leg,
			PulseIndex:    pulse,
			ReturnNumber:  ret,
			Position:      geom.Vec3{X: f[0], Y: f[1], Z: f[2]},
			BeamOrigin:    geom.Vec3{X: f[3], Y: f[4], Z: f[5]},
			BeamDirection: geom.Vec3{X: f[6], Y: f[7], Z: f[8]},
			Range:         f[9],
			Intensity:     f[10],
			GPSTimeNs:     f[11],
		})
	}
	return out, nil
}

func (s *Store) LoadTrajectory(runID string) ([]sim.Trajectory, error) {
	records, err := readCSV(filepath.Join(s.Dir(runID), trajectoryFile))
	if err != nil {
		return nil, err
	}

	out := make([]sim.Trajectory, 0, len(records))
	for i, r := range records {
		f, err := parseFloats(r)
		if err != nil || len(f) != len(trajectoryHeader) {
			return nil, fmt.Errorf("storage: %s row %d: malformed", trajectoryFile, i+1)
		}
		out = append(out, sim.Trajectory{
			GPSTimeNs: f[0],
			Position:  geom.Vec3{X: f[1], Y: f[2], Z: f[3]},
			Heading:   f[4],
		})
	}
	return out, nil
}

// readCSV returns the data rows of path, without the header.
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func measurementRow(m sim.Measurement) []string {
	return []string{
		strconv.Itoa(m.Leg),
		strconv.FormatInt(m.PulseIndex, 10),
		strconv.Itoa(m.ReturnNumber),
		ff(m.Position.X), ff(m.Position.Y), ff(m.Position.Z),
		ff(m.BeamOrigin.X), ff(m.BeamOrigin.Y), ff(m.BeamOrigin.Z),
		ff(m.BeamDirection.X), ff(m.BeamDirection.Y), ff(m.BeamDirection.Z),
		ff(m.Range),
		strconv.FormatFloat(m.Intensity, 'g', -1, 64),
		strconv.FormatFloat(m.GPSTimeNs, 'f', 0, 64),
	}
}

func trajectoryRow(t sim.Trajectory) []string {
	return []string{
		strconv.FormatFloat(t.GPSTimeNs, 'f', 0, 64),
		ff(t.Position.X), ff(t.Position.Y), ff(t.Position.Z),
		ff(t.Heading),
	}
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
