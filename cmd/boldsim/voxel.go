package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/boldsim/internal/analysis"
	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/export"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/spins"
	"github.com/san-kum/boldsim/internal/storage"
	"github.com/san-kum/boldsim/internal/viz"
)

// voxelFor loads --snapshot or the configured snapshot, or populates a new
// voxel from cfg.
func voxelFor(cfg *config.Config) (*geometry.ContinuousVoxel, error) {
	path := snapshot
	if path == "" {
		path = cfg.Voxel.Snapshot
	}
	if path != "" {
		v, err := geometry.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load voxel: %w", err)
		}
		return v, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.PopulateOptions(logger)
	if err != nil {
		return nil, err
	}
	return geometry.Populate(opts)
}

func buildGeometry(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	v, err := voxelFor(cfg)
	if err != nil {
		return err
	}

	fmt.Println(viz.HeaderStyle.Render("voxel"))
	fmt.Println(viz.Metric("dim", v.Dim()))
	fmt.Println(viz.Metric("size", fmt.Sprintf("%.4g mm", v.Size())))
	fmt.Println(viz.Metric("b0", fmt.Sprintf("%g T", v.B0())))
	fmt.Println(viz.Metric("vessels", humanize.Comma(int64(v.NumVessels()))))
	fmt.Println(viz.Metric("cbv", fmt.Sprintf("%.4f", v.CBV())))
	labels := map[string]int{}
	for _, ves := range v.Vessels() {
		labels[ves.Label]++
	}
	for _, name := range slices.Sorted(maps.Keys(labels)) {
		fmt.Println(viz.Metric("  "+name, humanize.Comma(int64(labels[name]))))
	}

	if gridSize > 0 {
		dv, err := geometry.Discretize(context.Background(), v, gridSize)
		if err != nil {
			return err
		}
		fmt.Println(viz.Metric("grid", fmt.Sprintf("%d^%d cells", dv.N(), dv.Dim())))
		fmt.Println(viz.Metric("iv fraction", fmt.Sprintf("%.4f", dv.IVFraction())))
		h := analysis.FrequencyHistogram(dv.FieldGrid(), spins.Gamma, bins)
		fmt.Println()
		fmt.Println(asciigraph.Plot(h.Counts,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("frequency offsets %.3g..%.3g Hz", h.Edges[0], h.Edges[len(h.Edges)-1])),
		))
	}

	if outFile != "" {
		if err := geometry.Save(outFile, v); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved voxel to %s\n", outFile)
	}
	return nil
}

func showVoxel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	v, err := voxelFor(cfg)
	if err != nil {
		return err
	}

	c := viz.NewCanvas(60, 30)
	var geo geometry.Geometry = v
	if gridSize > 0 {
		dv, err := geometry.Discretize(context.Background(), v, gridSize)
		if err != nil {
			return err
		}
		geo = dv
	}
	if v.Dim() == 3 && gridSize == 0 {
		viz.DrawVoxel(c, v, viz.NewCamera())
	} else {
		viz.DrawOwnership(c, geo)
	}
	if threshold > 0 {
		viz.DrawField(c, geo, threshold)
	}
	fmt.Print(c.String())
	fmt.Println(viz.KeyHint.Render(v.String()))
	if outFile != "" {
		return export.WriteFile(outFile, os.Stdout, export.CanvasToSVG(c, 4))
	}
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	if runID != "" {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		_, result, err := storage.LoadResult(st, runID)
		if err != nil {
			return err
		}
		return export.WriteFile(outFile, os.Stdout, export.SignalToSVG(result, 800, 400))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	v, err := voxelFor(cfg)
	if err != nil {
		return err
	}
	dv, err := geometry.Discretize(context.Background(), v, gridSize)
	if err != nil {
		return err
	}
	cell := max(1.0, 512/float64(gridSize))
	return export.WriteFile(outFile, os.Stdout, export.FieldToSVG(dv, cell))
}
