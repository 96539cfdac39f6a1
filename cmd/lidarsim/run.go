package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/lidarsim/internal/config"
	"github.com/san-kum/lidarsim/internal/logging"
	"github.com/san-kum/lidarsim/internal/observability"
	"github.com/san-kum/lidarsim/internal/pulse"
	"github.com/san-kum/lidarsim/internal/sim"
	"github.com/san-kum/lidarsim/internal/storage"
	"github.com/san-kum/lidarsim/internal/survey"
	"github.com/san-kum/lidarsim/internal/viz"
	"github.com/spf13/cobra"
)

// session holds what every run of one command invocation shares.
type session struct {
	cfg     *config.Config
	log     logging.Logger
	metrics *observability.SimCollector
	store   *storage.Store
	cleanup []func()
}

func newSession(ctx context.Context, cmd *cobra.Command, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, store: storage.New(storeDir(cmd, cfg))}
	s.log = logging.New(logging.Config{
		Level:  firstNonEmpty(logLevel, os.Getenv("LOG_LEVEL")),
		Format: firstNonEmpty(logFormat, os.Getenv("LOG_FORMAT")),
		Output: logOut,
	})

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), s.log)
	if err != nil {
		return nil, err
	}
	s.cleanup = append(s.cleanup, func() { observability.ShutdownWithTimeout(context.Background(), shutdown, s.log) })

	s.metrics, err = observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		s.close()
		return nil, err
	}
	if metricsAddr != "" {
		s.serveMetrics(metricsAddr)
	}

	if cfg.Simulation.ExportToFile {
		if err := s.store.Init(); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

// storeDir is where runs are written: --data when given, otherwise the
// configured output directory.
func storeDir(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("data") || cfg.Simulation.OutputDir == "" {
		return dataDir
	}
	return cfg.Simulation.OutputDir
}

func (s *session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "metrics server failed", logging.Err(err))
		}
	}()
	s.cleanup = append(s.cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

func (s *session) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// surveyRun is one prepared simulation and where its output goes.
type surveyRun struct {
	sim    *sim.Simulation
	setup  *survey.Setup
	writer *storage.RunWriter
}

// prepare builds a fresh simulation of the configured survey. extra, when
// not nil, receives every batch after the run writer.
func (s *session) prepare(extra sim.Callback) (*surveyRun, error) {
	cfg := s.cfg
	simCfg := cfg.Simulation

	var writer *storage.RunWriter
	outputPath := ""
	if simCfg.ExportToFile {
		w, err := s.store.Create(cfg.Survey.Name)
		if err != nil {
			return nil, err
		}
		writer = w
		outputPath = filepath.Join(w.Dir(), "measurements.csv")
	}

	setup, err := survey.FromConfig(cfg, outputPath, s.log, s.metrics)
	if err != nil {
		if writer != nil {
			err = errors.Join(err, writer.Discard())
		}
		return nil, err
	}

	strat, _ := pulse.ParseStrategy(simCfg.Strategy)
	pace, _ := sim.ParsePacing(simCfg.Pacing)
	simulation := sim.New(sim.Options{
		Strategy:          strat,
		ChunkSize:         simCfg.ChunkSize,
		Workers:           simCfg.Workers,
		CallbackFrequency: simCfg.CallbackFrequency,
		FixedGPSStart:     simCfg.FixedGPSStart,
		ExportToFile:      simCfg.ExportToFile,
		Pacing:            pace,
		Metrics:           s.metrics,
		Planner:           setup.Playback,
	}, s.log.With(logging.String("survey", cfg.Survey.Name)))
	simulation.SetScanner(setup.Scanner)
	simulation.SetSimSpeedFactor(setup.Survey.SimSpeedFactor)

	simulation.SetCallback(chainCallbacks(writerCallback(writer), extra))
	return &surveyRun{sim: simulation, setup: setup, writer: writer}, nil
}

func writerCallback(w *storage.RunWriter) sim.Callback {
	if w == nil {
		return nil
	}
	return w.Callback()
}

// chainCallbacks calls each non-nil callback in order.
func chainCallbacks(cbs ...sim.Callback) sim.Callback {
	return func(b sim.Batch) {
		for _, cb := range cbs {
			if cb != nil {
				cb(b)
			}
		}
	}
}

// finish closes the run writer with the run's final metadata.
func (s *session) finish(r *surveyRun, elapsed time.Duration, runErr error) error {
	defer r.sim.Close()
	if r.writer == nil {
		return nil
	}

	meta := storage.RunMetadata{
		Survey:        s.cfg.Survey.Name,
		PulseFreqHz:   r.setup.Scanner.PulseFreqHz(),
		Strategy:      s.cfg.Simulation.Strategy,
		Pacing:        s.cfg.Simulation.Pacing,
		SpeedFactor:   r.sim.SpeedFactor(),
		GPSStart:      s.cfg.Simulation.FixedGPSStart,
		Legs:          len(r.setup.Survey.Legs),
		LegsCompleted: r.sim.LegsCompleted(),
		Steps:         r.sim.Steps(),
		Duration:      elapsed.Seconds(),
		Metrics: map[string]float64{
			"pulses":       float64(r.setup.Scanner.Pulses()),
			"returns":      float64(r.setup.Scanner.Returns()),
			"survey_len_m": r.setup.Survey.Length(),
		},
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	if err := r.writer.Close(meta); err != nil {
		return fmt.Errorf("saving run %s: %w", r.writer.ID(), err)
	}
	fmt.Printf("saved run %s\n", r.writer.ID())
	return nil
}

func runSurvey(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer s.close()

	for i := 0; i < s.cfg.Survey.NumRuns && ctx.Err() == nil; i++ {
		r, err := s.prepare(nil)
		if err != nil {
			return err
		}

		start := time.Now()
		runErr := r.sim.Start(ctx)
		elapsed := time.Since(start)

		if err := s.finish(r, elapsed, runErr); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}
		fmt.Printf("run %d/%d: %d steps, %d legs, %d pulses, %d returns in %s\n",
			i+1, s.cfg.Survey.NumRuns,
			r.sim.Steps(), r.sim.LegsCompleted(),
			r.setup.Scanner.Pulses(), r.setup.Scanner.Returns(),
			elapsed.Round(time.Millisecond),
		)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dataDir, "live.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	s, err := newSession(ctx, cmd, logFile)
	if err != nil {
		return err
	}
	defer s.close()

	feed := viz.NewFeed(4000)
	r, err := s.prepare(feed.Consume)
	if err != nil {
		return err
	}

	// The run outlives the program when the view is killed; wait for it
	// before closing the run writer.
	var runErr error
	finished := make(chan struct{})
	start := time.Now()
	go func() {
		runErr = r.sim.Start(ctx)
		close(finished)
	}()
	wait := func() error {
		<-finished
		return runErr
	}

	model := viz.NewLive(r.sim, feed, wait, s.cfg.Survey.Name, len(r.setup.Survey.Legs))
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	r.sim.Stop()
	<-finished
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	if err := s.finish(r, time.Since(start), runErr); err != nil {
		return err
	}
	return runErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
