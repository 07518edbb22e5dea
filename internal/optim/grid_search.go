// Package optim sweeps configuration parameters over a grid and reports the
// run metrics at every point.
package optim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/boldsim/internal/experiment"
)

// Builder returns an experiment configured for one grid point. Sweep sets it
// up and runs it.
type Builder func(params map[string]float64) (*experiment.Experiment, error)

type Point struct {
	Params  map[string]float64
	Metrics map[string]float64
	Err     error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}, nil
}

// Params returns the swept parameter names in grid order.
func (g *GridSearch) Params() []string { return append([]string(nil), g.paramNames...) }

// SetWorkers bounds how many grid points run at once.
func (g *GridSearch) SetWorkers(n int) {
	if n > 0 {
		g.workers = n
	}
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val
		g.enumerate(depth+1, newParams, out)
	}
}

// Sweep runs every grid point. A point that fails to build or run records
// its error and the sweep continues; only cancellation aborts it.
func (g *GridSearch) Sweep(ctx context.Context, build Builder, progress func(done, total int)) ([]Point, error) {
	params := g.Points()
	points := make([]Point, len(params))

	var (
		mu   sync.Mutex
		done int
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, p := range params {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			points[i] = runPoint(ctx, build, p)
			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(params))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return points, err
	}
	return points, nil
}

func runPoint(ctx context.Context, build Builder, params map[string]float64) Point {
	pt := Point{Params: params}
	exp, err := build(params)
	if err != nil {
		pt.Err = err
		return pt
	}
	if err := exp.Setup(ctx); err != nil {
		pt.Err = err
		return pt
	}
	result, err := exp.Run(ctx)
	if err != nil {
		pt.Err = err
		return pt
	}
	pt.Metrics = result.Metrics
	return pt
}

// Search sweeps the grid and returns the point minimizing metricName, or
// maximizing it when maximize is set.
func (g *GridSearch) Search(ctx context.Context, build Builder, metricName string, maximize bool) (map[string]float64, float64, error) {
	points, err := g.Sweep(ctx, build, nil)
	if err != nil {
		return nil, 0, err
	}
	best := math.Inf(1)
	if maximize {
		best = math.Inf(-1)
	}
	var bestParams map[string]float64
	for _, pt := range points {
		if pt.Err != nil {
			continue
		}
		val, ok := pt.Metrics[metricName]
		if !ok || math.IsNaN(val) {
			continue
		}
		if (!maximize && val < best) || (maximize && val > best) {
			best = val
			bestParams = pt.Params
		}
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("grid search: no point reported %s", metricName)
	}
	return bestParams, best, nil
}
