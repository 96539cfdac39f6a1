package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/san-kum/lidarsim/internal/sim"
)

// Stats summarises one measured quantity.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

type ExportData struct {
	Run           RunMetadata `json:"run"`
	Returns       map[int]int `json:"returns_by_number"`
	Range         Stats       `json:"range_m"`
	Intensity     Stats       `json:"intensity_w"`
	Height        Stats       `json:"height_m"`
	PulsesWithHit int         `json:"pulses_with_returns"`
}

// Summarize computes the export document for a run's measurements.
func Summarize(meta RunMetadata, ms []sim.Measurement) ExportData {
	data := ExportData{Run: meta, Returns: make(map[int]int)}
	if len(ms) == 0 {
		return data
	}

	rng := newAcc()
	intensity := newAcc()
	height := newAcc()
	pulses := make(map[[2]int64]struct{})
	for _, m := range ms {
		data.Returns[m.ReturnNumber]++
		rng.add(m.Range)
		intensity.add(m.Intensity)
		height.add(m.Position.Z)
		pulses[[2]int64{int64(m.Leg), m.PulseIndex}] = struct{}{}
	}
	data.Range = rng.stats()
	data.Intensity = intensity.stats()
	data.Height = height.stats()
	data.PulsesWithHit = len(pulses)
	return data
}

func ExportJSON(path string, data ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func WriteJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

type acc struct {
	min, max, sum float64
	n             int
}

func newAcc() *acc { return &acc{min: math.Inf(1), max: math.Inf(-1)} }

func (a *acc) add(v float64) {
	a.min = math.Min(a.min, v)
	a.max = math.Max(a.max, v)
	a.sum += v
	a.n++
}

func (a *acc) stats() Stats {
	return Stats{Min: a.min, Max: a.max, Mean: a.sum / float64(a.n)}
}
