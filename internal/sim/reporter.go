package sim

import (
	"context"
	"time"

	"github.com/san-kum/lidarsim/internal/logging"
)

func (s *Simulation) reportPreStart(ctx context.Context, sc Scanner) {
	s.log.Info(ctx, "simulation starting",
		logging.Float("pulse_freq_hz", sc.PulseFreqHz()),
		logging.String("strategy", s.opts.Strategy.String()),
		logging.Int("chunk_size", s.dispatcher.ChunkSize()),
		logging.Int("workers", s.pool.Size()),
		logging.Int("callback_frequency", s.CallbackFrequency()),
		logging.Float("speed_factor", s.loop.SpeedFactor()),
		logging.String("pacing", s.opts.Pacing.String()),
	)
}

func (s *Simulation) reportPreFinish(ctx context.Context) {
	loop := s.loopEndedAt.Sub(s.loopStartedAt)
	steps := s.Steps()
	fields := []logging.Field{
		logging.Duration("loop_time", loop),
		logging.Int64("steps", steps),
		logging.Int("legs_completed", s.LegsCompleted()),
		logging.Float("gps_time_ns", s.GPSTime()),
	}
	if secs := loop.Seconds(); secs > 0 {
		fields = append(fields, logging.Float("steps_per_second", float64(steps)/secs))
	}
	s.log.Info(ctx, "simulation loop finished", fields...)
}

func (s *Simulation) reportPostFinish(ctx context.Context) {
	s.log.Info(ctx, "simulation finished",
		logging.Duration("total_time", time.Since(s.startedAt)),
	)
}
