package survey

import (
	"math"

	"github.com/san-kum/lidarsim/internal/config"
	"github.com/san-kum/lidarsim/internal/energy"
	"github.com/san-kum/lidarsim/internal/geom"
	"github.com/san-kum/lidarsim/internal/logging"
	"github.com/san-kum/lidarsim/internal/observability"
)

// Setup is a survey ready to be handed to a simulation.
type Setup struct {
	Survey   *Survey
	Scanner  *Scanner
	Playback *Playback
}

// FromConfig builds the scene, platform, scanner and playback described by
// cfg. outputPath is reported to callbacks when file export is enabled.
func FromConfig(cfg *config.Config, outputPath string, log logging.Logger, metrics *observability.SimCollector) (*Setup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := energy.ParseMode(cfg.Scanner.PowerMode)
	if err != nil {
		return nil, err
	}

	surfaces := make([]Surface, len(cfg.Scene.Surfaces))
	for i, s := range cfg.Scene.Surfaces {
		surfaces[i] = Surface{
			Name:     s.Name,
			Height:   s.Height,
			Coverage: s.Coverage,
			Drift:    s.DriftMps,
			Material: Material{
				Reflectance: s.Reflectance,
				Specularity: s.Specularity,
				Shininess:   s.Shininess,
			},
		}
	}
	platform := NewLinearPlatform(NewScene(surfaces...))

	sc := cfg.Scanner
	scanner, err := NewScanner(ScannerConfig{
		PulseFreqHz: sc.PulseFreqHz,
		Beam: energy.Beam{
			AveragePower: sc.AveragePowerW,
			Wavelength:   sc.WavelengthNm * 1e-9,
			MinRange:     sc.MinRangeM,
			WaistRadius:  sc.BeamWaistM,
			Divergence:   sc.BeamDivergenceMrad * 1e-3,
		},
		Receiver: energy.Receiver{
			Diameter:   sc.ReceiverDiameterM,
			Efficiency: sc.Efficiency,
		},
		Mode:               mode,
		Extinction:         cfg.Scene.AtmosphericExtinction,
		DetectionThreshold: sc.DetectionThresholdW,
		MaxRange:           sc.MaxRangeM,
		MaxReturns:         sc.MaxReturns,
		BeamSamples:        sc.BeamSamples,
		TrajectoryInterval: sc.TrajectoryInterval,
		ScanAngle:          deg(sc.ScanAngleDeg),
		ScanFreq:           sc.ScanFreqHz,
		OutputPath:         outputPath,
	}, platform, log, metrics)
	if err != nil {
		return nil, err
	}

	s := New(cfg.Survey.Name)
	if cfg.Survey.NumRuns > 0 {
		s.NumRuns = cfg.Survey.NumRuns
	}
	if cfg.Survey.SpeedFactor > 0 {
		s.SimSpeedFactor = cfg.Survey.SpeedFactor
	}
	for i, l := range cfg.Survey.Legs {
		leg := &Leg{
			Platform: PlatformSettings{
				Position: geom.Vec3{X: l.Position[0], Y: l.Position[1], Z: l.Position[2]},
				Speed:    l.SpeedOr(cfg.Platform.SpeedMps),
			},
			Scanner: ScannerSettings{
				Active:          l.IsActive(),
				HeadRotateStart: deg(l.HeadRotateStartDeg),
				HeadRotateRange: deg(l.HeadRotateRangeDeg),
				HeadRotateRate:  deg(l.HeadRotateRateDeg),
			},
		}
		if err := s.AddLeg(i, leg); err != nil {
			return nil, err
		}
	}

	playback, err := NewPlayback(s, scanner, log)
	if err != nil {
		return nil, err
	}
	return &Setup{Survey: s, Scanner: scanner, Playback: playback}, nil
}

func deg(d float64) float64 { return d * math.Pi / 180 }
