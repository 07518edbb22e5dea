package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/boldsim/internal/analysis"
	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/experiment"
	"github.com/san-kum/boldsim/internal/logging"
	"github.com/san-kum/boldsim/internal/optim"
	"github.com/san-kum/boldsim/internal/storage"
	"github.com/san-kum/boldsim/internal/viz"
)

// axonSpacing is the lattice pitch of synthetic packings in µm.
const axonSpacing = 2.0

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signalContext()
	defer stop()

	opts := []experiment.Option{experiment.WithLogger(logger)}
	trace := logging.NewSignalTrace(dataDir, logLevel)
	defer func() {
		if err := trace.Close(); err != nil {
			logger.Warn("signal trace incomplete", "err", err)
		}
	}()
	if trace != nil {
		opts = append(opts, experiment.WithObserver(trace))
	}
	_, err = execute(ctx, st, experiment.New(cfg, opts...), label)
	return err
}

// execute sets up and runs exp, saves the result and prints a summary. An
// interrupted run is saved with what it recorded.
func execute(ctx context.Context, st storage.Store, exp *experiment.Experiment, label string) (*dynamo.Result, error) {
	if err := exp.Setup(ctx); err != nil {
		return nil, err
	}
	cfg := exp.Config()
	v := exp.Voxel()
	fmt.Printf("running %s simulation: %s vessels, cbv %.4f, %s steps\n",
		cfg.Method, humanize.Comma(int64(v.NumVessels())), v.CBV(), humanize.Comma(int64(cfg.Sequence.NumSteps)))

	start := time.Now()
	result, err := exp.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, dynamo.ErrContextCanceled) || result == nil || result.StepsTaken == 0 {
			return nil, err
		}
		logger.Warn("run interrupted, saving partial result", "steps", result.StepsTaken)
		label = strings.TrimSpace(label + " partial")
	}

	text, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	meta := storage.RunMetadata{
		Method:   cfg.Method,
		Label:    label,
		Seed:     cfg.Seed,
		Repeats:  max(cfg.Repeats, 1),
		NumSpins: cfg.Spins.NumSpins,
		CBV:      v.CBV(),
		Vessels:  v.NumVessels(),
		Elapsed:  elapsed,
		Config:   string(text),
	}
	if cfg.Method == config.MethodDeterministic {
		meta.NumSpins = 0
	}
	id, err := st.Save(meta, result)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	printSummary(id, result, elapsed)
	return result, nil
}

func printSummary(id string, result *dynamo.Result, elapsed time.Duration) {
	fmt.Println(viz.HeaderStyle.Render("run " + id))
	fmt.Println(viz.Metric("steps", humanize.Comma(int64(result.StepsTaken))))
	fmt.Println(viz.Metric("elapsed", elapsed.Round(time.Millisecond)))
	if n := len(result.Total); n > 0 {
		fmt.Println(viz.Metric("final signal", fmt.Sprintf("%.6f", result.Total[n-1])))
	}
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(viz.Metric(name, fmt.Sprintf("%.6g", result.Metrics[name])))
	}
	for i, w := range result.Warnings {
		if i == 3 {
			fmt.Printf("... and %d more warnings\n", len(result.Warnings)-3)
			break
		}
		fmt.Println(viz.StatusPaused.Render("warning: ") + w.Error())
	}
}

func runAxons(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var (
		positions [][]float64
		radii     []float64
	)
	switch {
	case synthetic > 0:
		positions, radii = experiment.SyntheticPacking(synthetic, axonSpacing, cfg.Seed)
	case positionsFile != "" && radiiFile != "":
		positions, radii, err = experiment.LoadAxonTables(positionsFile, radiiFile)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("axons needs --positions and --radii, or --synthetic")
	}

	opts := experiment.DefaultAxonOptions()
	opts.CBV = axonCBV
	opts.Crop = crop
	opts.B0 = cfg.Voxel.B0
	opts.Seed = cfg.Seed
	voxel, blood, err := experiment.BuildAxonVoxel(positions, radii, opts)
	if err != nil {
		return err
	}
	logger.Info("axon voxel built", "fibres", len(radii), "cylinders", voxel.NumVessels(), "blood", len(blood),
		"size", voxel.Size())

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signalContext()
	defer stop()
	exp := experiment.New(cfg,
		experiment.WithLogger(logger),
		experiment.WithVoxel(voxel),
		experiment.WithPartition(experiment.BloodPartition(blood)),
	)
	if label == "" {
		label = fmt.Sprintf("axons cbv=%g", axonCBV)
	}
	_, err = execute(ctx, st, exp, label)
	return err
}

func compareRuns(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		return compareStored(args[0], args[1])
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(methods) < 2 {
		return fmt.Errorf("compare needs at least two methods, got %v", methods)
	}
	ctx, stop := signalContext()
	defer stop()

	results := make([]*dynamo.Result, len(methods))
	var opts []experiment.Option
	for i, m := range methods {
		c := cfg.Clone()
		c.Method = m
		exp := experiment.New(c, append([]experiment.Option{experiment.WithLogger(logger)}, opts...)...)
		if err := exp.Setup(ctx); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		if i == 0 {
			opts = append(opts, experiment.WithVoxel(exp.Voxel()))
		}
		start := time.Now()
		r, err := exp.Run(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		logger.Info("method finished", "method", m, "elapsed", time.Since(start))
		results[i] = r
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tFINAL\tDECAY RATE\tTOTAL\tEV\tIV")
	for i, r := range results {
		final := r.Total[len(r.Total)-1]
		if i == 0 {
			fmt.Fprintf(w, "%s\t%.5f\t%.4g\t(reference)\t\t\n", methods[i], final, r.Metrics["decay_rate"])
			continue
		}
		fmt.Fprintf(w, "%s\t%.5f\t%.4g\t%s\t%s\t%s\n", methods[i], final, r.Metrics["decay_rate"],
			diff(results[0].Total, r.Total), diff(results[0].EV, r.EV), diff(results[0].IV, r.IV))
	}
	return w.Flush()
}

func diff(a, b []float64) string {
	c, err := analysis.Compare(a, b)
	if err != nil {
		return "-"
	}
	return c.String()
}

func compareStored(idA, idB string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	metaA, a, err := storage.LoadResult(st, idA)
	if err != nil {
		return err
	}
	metaB, b, err := storage.LoadResult(st, idB)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s) vs %s (%s)\n", metaA.ID, metaA.Method, metaB.ID, metaB.Method)
	fmt.Println(viz.Metric("total", diff(a.Total, b.Total)))
	fmt.Println(viz.Metric("ev", diff(a.EV, b.EV)))
	fmt.Println(viz.Metric("iv", diff(a.IV, b.IV)))
	fmt.Println(viz.PlotSignals(a.Total, b.Total, nil, 80, 12, idA+" / "+idB))
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	grid, err := optim.ParseSpec(args)
	if err != nil {
		return err
	}
	grid.SetWorkers(workers)
	ctx, stop := signalContext()
	defer stop()

	quiet := logging.NewLogger("error", io.Discard)
	build := optim.ConfigBuilder(cfg, experiment.WithLogger(quiet))
	start := time.Now()
	points, err := grid.Sweep(ctx, build, func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r%s %d/%d", viz.ProgressBar(float64(done)/float64(total), 30), done, total)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	logger.Info("sweep finished", "points", len(points), "elapsed", time.Since(start))

	names := grid.Params()
	best, bestVal := -1, math.NaN()
	for i, pt := range points {
		v, ok := pt.Metrics[metric]
		if pt.Err != nil || !ok || math.IsNaN(v) {
			continue
		}
		if best < 0 || (maximize && v > bestVal) || (!maximize && v < bestVal) {
			best, bestVal = i, v
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(metric)+"\tFINAL\t")
	for i, pt := range points {
		cols := make([]string, len(names))
		for j, n := range names {
			cols[j] = fmt.Sprintf("%g", pt.Params[n])
		}
		row := strings.Join(cols, "\t")
		if pt.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\n", row, pt.Err)
			continue
		}
		mark := ""
		if i == best {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%.6g\t%.5f\t%s\n", row, pt.Metrics[metric], pt.Metrics["final_signal"], mark)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exp := experiment.New(cfg, experiment.WithLogger(logging.NewLogger("error", io.Discard)))
	if err := exp.Setup(context.Background()); err != nil {
		return err
	}
	title := cfg.Method
	if preset != "" {
		title += " / " + preset
	}
	return viz.RunLive(viz.NewModel(title, exp.Simulator(), exp.Voxel()))
}
