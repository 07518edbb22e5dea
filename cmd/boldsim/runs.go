package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/boldsim/internal/analysis"
	"github.com/san-kum/boldsim/internal/storage"
	"github.com/san-kum/boldsim/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tWHEN\tSTEPS\tSPINS\tCBV\tDECAY RATE\tLABEL")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f\t%.4g\t%s\n",
			run.ID,
			run.Method,
			humanize.Time(run.Timestamp),
			humanize.Comma(int64(run.Steps)),
			humanize.Comma(int64(run.NumSpins)),
			run.CBV,
			run.Metrics["decay_rate"],
			run.Label,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, result, err := storage.LoadResult(st, args[0])
	if err != nil {
		return err
	}
	if len(result.Total) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Println(viz.Metric("run", meta.ID))
	fmt.Println(viz.Metric("method", meta.Method))
	fmt.Println(viz.Metric("samples", humanize.Comma(int64(len(result.Total)))))
	fmt.Println(viz.Metric("dt", fmt.Sprintf("%g ms", meta.Dt)))
	fmt.Println()
	fmt.Println(viz.PlotSignals(result.Total, result.EV, result.IV, 80, 14, "total / EV / IV vs step"))

	if spectrum {
		ps := analysis.PowerSpectrum(result.Total)
		if len(ps) > 1 {
			fmt.Println()
			fmt.Println(asciigraph.Plot(ps[1:],
				asciigraph.Height(10),
				asciigraph.Width(80),
				asciigraph.Caption("|FFT(total)| without DC"),
			))
		}
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	_, result, err := storage.LoadResult(st, args[0])
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.WriteCSV(os.Stdout, result)
	}
	if err := storage.ExportCSV(outFile, result); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %s to %s\n", args[0], outFile)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, result, err := storage.LoadResult(st, args[0])
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.WriteJSON(os.Stdout, meta, result)
	}
	if err := storage.ExportJSON(outFile, meta, result); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %s to %s\n", args[0], outFile)
	return nil
}
