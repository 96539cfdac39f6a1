package config

import "sort"

func ptr[T any](v T) *T { return &v }

var Presets = map[string]*Config{
	// Airborne: two flight lines joined by an inactive transit.
	"als": {
		Survey: SurveyConfig{
			Name: "als-forest", NumRuns: 1, SpeedFactor: 1,
			Legs: []LegConfig{
				{Position: [3]float64{0, 0, 1000}},
				{Position: [3]float64{600, 0, 1000}, Active: ptr(false)},
				{Position: [3]float64{600, 150, 1000}},
				{Position: [3]float64{0, 150, 1000}},
			},
		},
		Platform: PlatformConfig{SpeedMps: 60},
		Scanner: ScannerConfig{
			PulseFreqHz: 5000, AveragePowerW: 4, WavelengthNm: 1064,
			BeamDivergenceMrad: 0.5, BeamWaistM: 0.0002, MaxRangeM: 2000,
			ReceiverDiameterM: 0.15, Efficiency: 0.9, DetectionThresholdW: 1e-10,
			MaxReturns: 4, BeamSamples: 7, ScanAngleDeg: 20, ScanFreqHz: 40,
			PowerMode: "standard", TrajectoryInterval: 100,
		},
		Scene: SceneConfig{
			AtmosphericExtinction: 0.0001,
			Surfaces: []SurfaceConfig{
				{Name: "canopy", Height: 18, Coverage: 0.45, Reflectance: 0.45, Specularity: 0.05, Shininess: 5},
				{Name: "understory", Height: 2, Coverage: 0.3, Reflectance: 0.35, Specularity: 0.05, Shininess: 5},
				{Name: "ground", Height: 0, Coverage: 1, Reflectance: 0.25, Specularity: 0.1, Shininess: 10},
			},
		},
		Simulation: SimulationConfig{
			Strategy: "warehouse", ChunkSize: 2, CallbackFrequency: 1000,
			Pacing: "accelerated", ExportToFile: true, OutputDir: DefaultOutputDir,
		},
	},
	// Terrestrial: two static stations, one full head turn each.
	"tls": {
		Survey: SurveyConfig{
			Name: "tls-stations", NumRuns: 1, SpeedFactor: 1,
			Legs: []LegConfig{
				{Position: [3]float64{0, 0, 1.6}, Speed: ptr(0.0), HeadRotateRangeDeg: 360, HeadRotateRateDeg: 36},
				{Position: [3]float64{25, 10, 1.6}, Speed: ptr(0.0), HeadRotateRangeDeg: 360, HeadRotateRateDeg: 36},
			},
		},
		Scanner: ScannerConfig{
			PulseFreqHz: 5000, AveragePowerW: 0.2, WavelengthNm: 1550,
			BeamDivergenceMrad: 0.3, BeamWaistM: 0.0015, MinRangeM: 0.5, MaxRangeM: 300,
			ReceiverDiameterM: 0.05, Efficiency: 0.8, DetectionThresholdW: 1e-11,
			MaxReturns: 1, BeamSamples: 5, ScanAngleDeg: 80, ScanFreqHz: 25,
			PowerMode: "standard", TrajectoryInterval: 1000,
		},
		Scene: SceneConfig{
			AtmosphericExtinction: 0.0002,
			Surfaces: []SurfaceConfig{
				{Name: "pavement", Height: 0, Coverage: 1, Reflectance: 0.2, Specularity: 0.3, Shininess: 20},
			},
		},
		Simulation: SimulationConfig{
			Strategy: "chunk", ChunkSize: 8, CallbackFrequency: 2000,
			Pacing: "accelerated", ExportToFile: true, OutputDir: DefaultOutputDir,
		},
	},
	// UAV: low, slow, dense, with a slowly rising water surface.
	"uls": {
		Survey: SurveyConfig{
			Name: "uls-wetland", NumRuns: 1, SpeedFactor: 1,
			Legs: []LegConfig{
				{Position: [3]float64{0, 0, 60}},
				{Position: [3]float64{80, 0, 60}},
			},
		},
		Platform: PlatformConfig{SpeedMps: 8},
		Scanner: ScannerConfig{
			PulseFreqHz: 10000, AveragePowerW: 0.5, WavelengthNm: 905,
			BeamDivergenceMrad: 1, BeamWaistM: 0.0005, MaxRangeM: 300,
			ReceiverDiameterM: 0.04, Efficiency: 0.85, DetectionThresholdW: 1e-9,
			MaxReturns: 3, BeamSamples: 9, ScanAngleDeg: 35, ScanFreqHz: 20,
			PowerMode: "legacy", TrajectoryInterval: 50,
		},
		Scene: SceneConfig{
			AtmosphericExtinction: 0.0003,
			Surfaces: []SurfaceConfig{
				{Name: "reeds", Height: 1.5, Coverage: 0.5, Reflectance: 0.4, Specularity: 0.05, Shininess: 5},
				{Name: "water", Height: 0.2, Coverage: 1, DriftMps: 0.01, Reflectance: 0.05, Specularity: 0.9, Shininess: 80},
			},
		},
		Simulation: SimulationConfig{
			Strategy: "chunk", ChunkSize: 3, CallbackFrequency: 1000,
			Pacing: "accelerated", ExportToFile: true, OutputDir: DefaultOutputDir,
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *cfg
	c.Survey.Legs = append([]LegConfig(nil), cfg.Survey.Legs...)
	c.Scene.Surfaces = append([]SurfaceConfig(nil), cfg.Scene.Surfaces...)
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
