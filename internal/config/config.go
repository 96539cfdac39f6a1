package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/lidarsim/internal/energy"
	"github.com/san-kum/lidarsim/internal/pulse"
	"github.com/san-kum/lidarsim/internal/sim"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

const (
	DefaultPulseFreqHz        = 10000.0
	DefaultChunkSize          = 32
	DefaultCallbackFrequency  = 1000
	DefaultBeamSamples        = 7
	DefaultMaxReturns         = 4
	DefaultTrajectoryInterval = 100
	DefaultOutputDir          = ".lidarsim"
)

type Config struct {
	Survey     SurveyConfig     `yaml:"survey"`
	Platform   PlatformConfig   `yaml:"platform"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Scene      SceneConfig      `yaml:"scene"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type SurveyConfig struct {
	Name        string      `yaml:"name"`
	NumRuns     int         `yaml:"num_runs"`
	SpeedFactor float64     `yaml:"speed_factor"`
	Legs        []LegConfig `yaml:"legs"`
}

type LegConfig struct {
	Position           [3]float64 `yaml:"position,flow"`
	Speed              *float64   `yaml:"speed_mps,omitempty"` // defaults to platform speed
	Active             *bool      `yaml:"active,omitempty"`    // defaults to true
	HeadRotateStartDeg float64    `yaml:"head_rotate_start_deg,omitempty"`
	HeadRotateRangeDeg float64    `yaml:"head_rotate_range_deg,omitempty"`
	HeadRotateRateDeg  float64    `yaml:"head_rotate_rate_deg,omitempty"`
}

// IsActive reports whether the scanner emits pulses on the leg.
func (l LegConfig) IsActive() bool { return l.Active == nil || *l.Active }

// SpeedOr returns the leg speed, or def when the leg does not set one.
func (l LegConfig) SpeedOr(def float64) float64 {
	if l.Speed == nil {
		return def
	}
	return *l.Speed
}

type PlatformConfig struct {
	SpeedMps float64 `yaml:"speed_mps"`
}

type ScannerConfig struct {
	PulseFreqHz         float64 `yaml:"pulse_freq_hz"`
	AveragePowerW       float64 `yaml:"average_power_w"`
	WavelengthNm        float64 `yaml:"wavelength_nm"`
	BeamDivergenceMrad  float64 `yaml:"beam_divergence_mrad"`
	BeamWaistM          float64 `yaml:"beam_waist_m"`
	MinRangeM           float64 `yaml:"min_range_m"`
	MaxRangeM           float64 `yaml:"max_range_m"`
	ReceiverDiameterM   float64 `yaml:"receiver_diameter_m"`
	Efficiency          float64 `yaml:"efficiency"`
	DetectionThresholdW float64 `yaml:"detection_threshold_w"`
	MaxReturns          int     `yaml:"max_returns"`
	BeamSamples         int     `yaml:"beam_samples"`
	ScanAngleDeg        float64 `yaml:"scan_angle_deg"`
	ScanFreqHz          float64 `yaml:"scan_freq_hz"`
	PowerMode           string  `yaml:"power_mode"`
	TrajectoryInterval  int     `yaml:"trajectory_interval"`
}

type SceneConfig struct {
	AtmosphericExtinction float64         `yaml:"atmospheric_extinction"`
	Surfaces              []SurfaceConfig `yaml:"surfaces"`
}

type SurfaceConfig struct {
	Name        string  `yaml:"name"`
	Height      float64 `yaml:"height"`
	Coverage    float64 `yaml:"coverage"`
	DriftMps    float64 `yaml:"drift_mps,omitempty"`
	Reflectance float64 `yaml:"reflectance"`
	Specularity float64 `yaml:"specularity"`
	Shininess   float64 `yaml:"shininess"`
}

type SimulationConfig struct {
	Strategy          string `yaml:"strategy"`
	ChunkSize         int    `yaml:"chunk_size"`
	Workers           int    `yaml:"workers"`
	CallbackFrequency int    `yaml:"callback_frequency"`
	FixedGPSStart     string `yaml:"fixed_gps_start"`
	Pacing            string `yaml:"pacing"`
	ExportToFile      bool   `yaml:"export_to_file"`
	OutputDir         string `yaml:"output_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Survey: SurveyConfig{
			Name:        "default",
			NumRuns:     1,
			SpeedFactor: 1,
			Legs: []LegConfig{
				{Position: [3]float64{0, 0, 500}},
				{Position: [3]float64{300, 0, 500}},
			},
		},
		Platform: PlatformConfig{SpeedMps: 50},
		Scanner: ScannerConfig{
			PulseFreqHz:         DefaultPulseFreqHz,
			AveragePowerW:       4,
			WavelengthNm:        1064,
			BeamDivergenceMrad:  0.5,
			BeamWaistM:          0.0002,
			MinRangeM:           0,
			MaxRangeM:           2000,
			ReceiverDiameterM:   0.15,
			Efficiency:          0.9,
			DetectionThresholdW: 1e-10,
			MaxReturns:          DefaultMaxReturns,
			BeamSamples:         DefaultBeamSamples,
			ScanAngleDeg:        20,
			ScanFreqHz:          50,
			PowerMode:           "standard",
			TrajectoryInterval:  DefaultTrajectoryInterval,
		},
		Scene: SceneConfig{
			AtmosphericExtinction: 0.0001,
			Surfaces: []SurfaceConfig{
				{Name: "ground", Height: 0, Coverage: 1, Reflectance: 0.3, Specularity: 0.1, Shininess: 10},
			},
		},
		Simulation: SimulationConfig{
			Strategy:          "chunk",
			ChunkSize:         DefaultChunkSize,
			CallbackFrequency: DefaultCallbackFrequency,
			Pacing:            "accelerated",
			ExportToFile:      true,
			OutputDir:         DefaultOutputDir,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Survey.Legs) == 0 {
		add("survey needs at least one leg")
	}
	for i, leg := range c.Survey.Legs {
		if leg.SpeedOr(c.Platform.SpeedMps) < 0 {
			add("leg %d: negative speed", i)
		}
		if leg.HeadRotateRangeDeg != 0 && leg.HeadRotateRateDeg == 0 {
			add("leg %d: head rotate range without rate", i)
		}
	}

	s := c.Scanner
	if s.PulseFreqHz <= 0 {
		add("scanner.pulse_freq_hz must be positive")
	}
	if s.WavelengthNm <= 0 {
		add("scanner.wavelength_nm must be positive")
	}
	if s.BeamDivergenceMrad <= 0 {
		add("scanner.beam_divergence_mrad must be positive")
	}
	if s.MaxRangeM <= 0 {
		add("scanner.max_range_m must be positive")
	}
	if s.Efficiency <= 0 || s.Efficiency > 1 {
		add("scanner.efficiency must be in (0, 1]")
	}
	if s.MaxReturns < 1 {
		add("scanner.max_returns must be at least 1")
	}
	if s.BeamSamples < 1 {
		add("scanner.beam_samples must be at least 1")
	}
	if _, err := energy.ParseMode(s.PowerMode); err != nil {
		add("scanner.power_mode: %v", err)
	}

	if len(c.Scene.Surfaces) == 0 {
		add("scene needs at least one surface")
	}
	for i, surf := range c.Scene.Surfaces {
		if surf.Coverage <= 0 || surf.Coverage > 1 {
			add("surface %d: coverage must be in (0, 1]", i)
		}
		if surf.Specularity < 0 || surf.Specularity > 1 {
			add("surface %d: specularity must be in [0, 1]", i)
		}
	}

	if _, err := pulse.ParseStrategy(c.Simulation.Strategy); err != nil {
		add("simulation.strategy: %v", err)
	}
	if _, err := sim.ParsePacing(c.Simulation.Pacing); err != nil {
		add("simulation.pacing: %v", err)
	}
	if c.Simulation.ChunkSize < 0 {
		add("simulation.chunk_size must not be negative")
	}
	if c.Simulation.CallbackFrequency < 0 {
		add("simulation.callback_frequency must not be negative")
	}
	if c.Simulation.ExportToFile && c.Simulation.CallbackFrequency == 0 {
		add("simulation.callback_frequency must be positive when export_to_file is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
