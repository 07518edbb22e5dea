package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/experiment"
	"github.com/san-kum/boldsim/internal/logging"
	"github.com/san-kum/boldsim/internal/optim"
	"github.com/san-kum/boldsim/internal/storage"
	"github.com/san-kum/boldsim/internal/viz"
)

var (
	dataDir    string
	storeKind  string
	logLevel   string
	configFile string

	method    string
	preset    string
	seed      uint64
	numSteps  int
	numSpins  int
	repeats   int
	label     string
	overrides []string

	gridSize  int
	snapshot  string
	threshold float64
	outFile   string
	runID     string
	bins      int
	spectrum  bool

	methods  []string
	workers  int
	metric   string
	maximize bool

	positionsFile string
	radiiFile     string
	synthetic     int
	axonCBV       float64
	crop          float64
)

var logger *slog.Logger

// main registers the commands and runs the root command. Without a
// subcommand it opens the interactive preset picker.
func main() {
	rootCmd := &cobra.Command{
		Use:   "boldsim",
		Short: "BOLD signal decay simulator",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logLevel, os.Stderr)
			slog.SetDefault(logger)
		},
		RunE: runInteractive,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".boldsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", storage.KindDir, "run store backend (dir|sqlite)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml or ini)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store the signal",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)
	runCmd.Flags().StringVar(&label, "label", "", "run label")

	geometryCmd := &cobra.Command{
		Use:   "geometry",
		Short: "build a voxel and summarize it",
		Args:  cobra.NoArgs,
		RunE:  buildGeometry,
	}
	addSimFlags(geometryCmd)
	geometryCmd.Flags().StringVarP(&outFile, "out", "o", "", "save the voxel snapshot (json or yaml)")
	geometryCmd.Flags().IntVar(&gridSize, "grid", 0, "discretize and histogram the field at this resolution")
	geometryCmd.Flags().IntVar(&bins, "bins", 40, "histogram bins")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "draw a voxel in the terminal",
		Args:  cobra.NoArgs,
		RunE:  showVoxel,
	}
	addSimFlags(showCmd)
	showCmd.Flags().StringVar(&snapshot, "snapshot", "", "voxel snapshot to draw")
	showCmd.Flags().IntVar(&gridSize, "grid", 0, "draw ownership of the discretized voxel")
	showCmd.Flags().Float64Var(&threshold, "field", 0, "also light points where |dBz| exceeds this (T)")
	showCmd.Flags().StringVarP(&outFile, "out", "o", "", "also write the drawing as SVG")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg",
		Short: "export a field heatmap, or a stored run's curves with --run",
		Args:  cobra.NoArgs,
		RunE:  exportSVG,
	}
	addSimFlags(exportSVGCmd)
	exportSVGCmd.Flags().StringVar(&snapshot, "snapshot", "", "voxel snapshot to draw")
	exportSVGCmd.Flags().IntVar(&gridSize, "grid", 128, "field grid resolution")
	exportSVGCmd.Flags().StringVar(&runID, "run", "", "stored run to plot instead of a field")
	exportSVGCmd.Flags().StringVarP(&outFile, "out", "o", "-", "output file")

	compareCmd := &cobra.Command{
		Use:   "compare [run_id run_id]",
		Short: "compare two stored runs, or methods on one shared voxel",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or two run ids, got %d", len(args))
			}
			return nil
		},
		RunE: compareRuns,
	}
	addSimFlags(compareCmd)
	compareCmd.Flags().StringSliceVar(&methods, "methods", []string{config.MethodMonteCarlo, config.MethodDeterministic}, "methods to compare")

	sweepCmd := &cobra.Command{
		Use:   "sweep name=range...",
		Short: "sweep parameters over a grid (range is lo:hi:n or a,b,c)",
		Long:  "sweep parameters over a grid. parameters: " + strings.Join(optim.ParamNames(), ", "),
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSweep,
	}
	addSimFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&workers, "workers", 2, "grid points run at once")
	sweepCmd.Flags().StringVar(&metric, "metric", "decay_rate", "metric to optimize")
	sweepCmd.Flags().BoolVar(&maximize, "maximize", false, "report the largest metric value")

	axonsCmd := &cobra.Command{
		Use:   "axons",
		Short: "simulate blood vessels among axons from position and radius tables",
		Args:  cobra.NoArgs,
		RunE:  runAxons,
	}
	addSimFlags(axonsCmd)
	axonsCmd.Flags().StringVar(&label, "label", "", "run label")
	axonsCmd.Flags().StringVar(&positionsFile, "positions", "", "CSV with x and y rows (µm)")
	axonsCmd.Flags().StringVar(&radiiFile, "radii", "", "CSV with one radius per column (µm)")
	axonsCmd.Flags().IntVar(&synthetic, "synthetic", 0, "generate a jittered packing of n fibres instead of reading tables")
	axonsCmd.Flags().Float64Var(&axonCBV, "cbv", 0.01, "fraction of columns made blood vessels")
	axonsCmd.Flags().Float64Var(&crop, "crop", 0.5, "keep the central fraction of the table")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with live visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&spectrum, "spectrum", false, "also plot the power spectrum of the total signal")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file")

	presetsCmd := &cobra.Command{
		Use:   "presets [method]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.Methods
			if len(args) == 1 {
				names = args
			}
			for _, m := range names {
				presets := config.ListPresets(m)
				if len(presets) == 0 {
					fmt.Printf("no presets for method: %s\n", m)
					continue
				}
				fmt.Printf("presets for %s:\n", m)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, geometryCmd, showCmd, exportSVGCmd, compareCmd, sweepCmd, axonsCmd, liveCmd,
		listCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&method, "method", "m", config.MethodMonteCarlo, "simulation method ("+strings.Join(config.Methods, "|")+")")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&numSteps, "steps", 0, "number of time steps")
	cmd.Flags().IntVar(&numSpins, "spins", 0, "number of spins")
	cmd.Flags().IntVar(&repeats, "repeats", 0, "average this many runs over consecutive seeds")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "override a parameter, name=value (repeatable)")
}

// loadConfig layers the config file, the preset and changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("method") {
		cfg.Method = method
	}
	if preset != "" {
		apply, ok := config.Presets[cfg.Method][preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Method))
		}
		apply(cfg)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("steps") {
		cfg.Sequence.NumSteps = numSteps
	}
	if cmd.Flags().Changed("spins") {
		cfg.Spins.NumSpins = numSpins
	}
	if cmd.Flags().Changed("repeats") {
		cfg.Repeats = repeats
	}
	for _, o := range overrides {
		name, value, ok := strings.Cut(o, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected name=value", o)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", o, err)
		}
		if err := optim.Apply(cfg, strings.TrimSpace(name), v); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openStore() (storage.Store, error) {
	st, err := storage.Open(storeKind, dataDir)
	if err != nil {
		return nil, err
	}
	if err := st.Init(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// signalContext is cancelled on interrupt so a run returns what it has.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	var presets []viz.Preset
	for _, m := range config.Methods {
		for _, name := range config.ListPresets(m) {
			presets = append(presets, viz.Preset{Method: m, Name: name})
		}
	}
	sort.SliceStable(presets, func(i, j int) bool { return presets[i].Method < presets[j].Method })

	paramsFor := func(p viz.Preset) []viz.Param {
		cfg := config.GetPreset(p.Method, p.Name)
		params := []viz.Param{
			{Name: "cbv", Value: cfg.Voxel.CBV, Step: 0.005},
			{Name: "b0", Value: cfg.Voxel.B0, Step: 0.5},
			{Name: "adc", Value: cfg.Spins.ADC, Step: 1e-4},
		}
		if len(cfg.Groups) > 0 {
			params = append(params, viz.Param{Name: "dchi", Value: cfg.Groups[0].Dchi, Step: 1e-8})
		}
		if p.Method != config.MethodDeterministic {
			params = append(params, viz.Param{Name: "num_spins", Value: float64(cfg.Spins.NumSpins), Step: 1000})
		}
		return params
	}

	launch := func(p viz.Preset, params map[string]float64) (viz.Model, error) {
		cfg, err := config.LoadWithEnv(configFile)
		if err != nil {
			return viz.Model{}, err
		}
		config.Presets[p.Method][p.Name](cfg)
		cfg.Method = p.Method
		for name, v := range params {
			if err := optim.Apply(cfg, name, v); err != nil {
				return viz.Model{}, err
			}
		}
		exp := experiment.New(cfg, experiment.WithLogger(logging.NewLogger("error", io.Discard)))
		if err := exp.Setup(context.Background()); err != nil {
			return viz.Model{}, err
		}
		return viz.NewModel(p.Method+" / "+p.Name, exp.Simulator(), exp.Voxel()), nil
	}
	return viz.RunInteractive(presets, paramsFor, launch)
}
