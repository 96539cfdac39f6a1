package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/lidarsim/internal/config"
	"github.com/san-kum/lidarsim/internal/energy"
	"github.com/san-kum/lidarsim/internal/export"
	"github.com/san-kum/lidarsim/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	logFormat   string
	configFile  string
	preset      string
	strategy    string
	chunkSize   int
	workers     int
	cbFrequency int
	gpsStart    string
	pacing      string
	speedFactor float64
	noExport    bool
	metricsAddr string
	jsonOut     bool
	svgOut      bool
	maxRange    float64
)

// main wires the lidarsim commands and exits with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "lidarsim",
		Short:         "lidar survey simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultOutputDir, "data directory (overrides simulation.output_dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a survey simulation",
		Args:  cobra.NoArgs,
		RunE:  runSurvey,
	}
	addSimFlags(runCmd)
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a survey with live visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addSimFlags(liveCmd)
	liveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot the returns of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run summary as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&jsonOut, "stdout", false, "write to stdout instead of the run directory")
	exportCmd.Flags().BoolVar(&svgOut, "svg", false, "also render a top-down map of the returns")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset surveys",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a survey config file",
		Args:  cobra.ExactArgs(1),
		RunE:  writeConfig,
	}
	initCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	powerCmd := &cobra.Command{
		Use:   "power",
		Short: "plot received power against range for a scanner",
		Args:  cobra.NoArgs,
		RunE:  plotPower,
	}
	powerCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	powerCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	powerCmd.Flags().Float64Var(&maxRange, "max-range", 0, "largest range to plot, metres (default scanner max range)")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, showCmd, exportCmd, presetsCmd, initCmd, powerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&strategy, "strategy", "chunk", "pulse parallelization (sequential, chunk, warehouse)")
	cmd.Flags().IntVar(&chunkSize, "chunk", config.DefaultChunkSize, "subrays per work unit")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = all cpus)")
	cmd.Flags().IntVar(&cbFrequency, "callback-frequency", config.DefaultCallbackFrequency, "steps between output deliveries")
	cmd.Flags().StringVar(&gpsStart, "gps-start", "", `fixed GPS start: posix seconds or "YYYY-MM-DD hh:mm:ss"`)
	cmd.Flags().StringVar(&pacing, "pacing", "accelerated", "step pacing (accelerated, realtime)")
	cmd.Flags().Float64Var(&speedFactor, "speed", 1, "simulation speed factor")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "do not write measurements to the data directory")
}

// loadConfig resolves preset, then config file, then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	sc := &cfg.Simulation
	if flags.Changed("strategy") {
		sc.Strategy = strategy
	}
	if flags.Changed("chunk") {
		sc.ChunkSize = chunkSize
	}
	if flags.Changed("workers") {
		sc.Workers = workers
	}
	if flags.Changed("callback-frequency") {
		sc.CallbackFrequency = cbFrequency
	}
	if flags.Changed("gps-start") {
		sc.FixedGPSStart = gpsStart
	}
	if flags.Changed("pacing") {
		sc.Pacing = pacing
	}
	if flags.Changed("no-export") {
		sc.ExportToFile = !noExport
	}
	if flags.Changed("speed") {
		cfg.Survey.SpeedFactor = speedFactor
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSURVEY\tTIME\tSTEPS\tLEGS\tRETURNS\tDURATION\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%.2fs\t%s\n",
			run.ID,
			run.Survey,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.LegsCompleted, run.Legs,
			run.Measurements,
			run.Duration,
			status,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	ms, err := st.LoadMeasurements(runID)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("survey: %s\n", meta.Survey)
	fmt.Printf("returns: %d\n\n", len(ms))

	series := []struct {
		caption string
		value   func(i int) float64
	}{
		{"return height (m)", func(i int) float64 { return ms[i].Position.Z }},
		{"range (m)", func(i int) float64 { return ms[i].Range }},
		{"log10 intensity (W)", func(i int) float64 { return math.Log10(ms[i].Intensity) }},
	}
	for _, s := range series {
		data := make([]float64, len(ms))
		for i := range ms {
			data[i] = s.value(i)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	ms, err := st.LoadMeasurements(runID)
	if err != nil {
		return err
	}

	data := storage.Summarize(*meta, ms)
	if jsonOut {
		return storage.WriteJSON(os.Stdout, data)
	}
	path := filepath.Join(st.Dir(runID), "summary.json")
	if err := storage.ExportJSON(path, data); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)

	if svgOut {
		track, err := st.LoadTrajectory(runID)
		if err != nil {
			return err
		}
		svgPath := filepath.Join(st.Dir(runID), "map.svg")
		f, err := os.Create(svgPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.MapSVG(f, ms, track, 800); err != nil {
			return err
		}
		fmt.Printf("map written to %s\n", svgPath)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSURVEY\tLEGS\tPULSE FREQ\tSURFACES")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f Hz\t%d\n",
			name, cfg.Survey.Name, len(cfg.Survey.Legs), cfg.Scanner.PulseFreqHz, len(cfg.Scene.Surfaces))
	}
	return w.Flush()
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if preset != "" {
		if cfg = config.GetPreset(preset); cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

// plotPower charts the nadir received power of a fully lit target over
// range for both power equation families.
func plotPower(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc := cfg.Scanner
	limit := maxRange
	if limit <= 0 {
		limit = sc.MaxRangeM
	}

	beam := energy.Beam{
		AveragePower: sc.AveragePowerW,
		Wavelength:   sc.WavelengthNm * 1e-9,
		MinRange:     sc.MinRangeM,
		WaistRadius:  sc.BeamWaistM,
		Divergence:   sc.BeamDivergenceMrad * 1e-3,
	}
	rx := energy.Receiver{Diameter: sc.ReceiverDiameterM, Efficiency: sc.Efficiency}
	ae := cfg.Scene.AtmosphericExtinction
	reflectance := cfg.Scene.Surfaces[0].Reflectance

	const samples = 80
	modes := []energy.Mode{energy.ModeStandard, energy.ModeLegacy}
	series := make([][]float64, len(modes))
	start := math.Max(1, sc.MinRangeM)
	for i := 0; i < samples; i++ {
		R := start + (limit-start)*float64(i)/(samples-1)
		radius := R*math.Tan(beam.Divergence/2) + beam.WaistRadius
		sigma := energy.CrossSection(reflectance*energy.PhongBDRF(0, 0, 1), math.Pi*radius*radius, 0)
		for m, mode := range modes {
			series[m] = append(series[m], math.Log10(mode.ReceivedPower(beam, rx, R, 0, ae, sigma)))
		}
	}

	fmt.Printf("survey: %s, %.0f-%.0f m, threshold %.2e W\n\n", cfg.Survey.Name, start, limit, sc.DetectionThresholdW)
	graph := asciigraph.PlotMany(series,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
		asciigraph.SeriesLegends("standard", "legacy"),
		asciigraph.Caption("log10 received power (W) vs range"),
	)
	fmt.Println(graph)
	return nil
}
