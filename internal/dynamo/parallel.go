package dynamo

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Factory builds an independent simulator for one repeat.
type Factory func(seed uint64) (*Simulator, error)

type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart uint64
	limit     int
}

func NewEnsemble(f Factory, numRuns int, seedStart uint64) *Ensemble {
	return &Ensemble{factory: f, numRuns: numRuns, seedStart: seedStart, limit: runtime.GOMAXPROCS(0)}
}

// SetLimit bounds the number of repeats running at once.
func (e *Ensemble) SetLimit(n int) {
	if n > 0 {
		e.limit = n
	}
}

// Run walks every repeat to completion. Repeat i uses seed seedStart+i. On
// error the repeats that did complete are returned alongside it, in seed
// order.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	if e.numRuns <= 0 {
		return nil, Configf("repeats", "must be positive, got %d", e.numRuns)
	}
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			s, err := e.factory(e.seedStart + uint64(i))
			if err != nil {
				return fmt.Errorf("repeat %d: %w", i, err)
			}
			res, err := s.Walk(ctx)
			if err != nil {
				return fmt.Errorf("repeat %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		done := make([]*Result, 0, len(results))
		for _, r := range results {
			if r != nil {
				done = append(done, r)
			}
		}
		return done, err
	}
	return results, nil
}

// Average returns the pointwise mean of equally long results.
func Average(results []*Result) (*Result, error) {
	if len(results) == 0 {
		return nil, Configf("results", "nothing to average")
	}
	n := results[0].StepsTaken
	avg := newResult(n, results[0].Dt)
	avg.Times = append(avg.Times, results[0].Times...)
	avg.Total = make([]float64, n)
	avg.EV = make([]float64, n)
	avg.IV = make([]float64, n)
	avg.StepsTaken = n

	for _, r := range results {
		if r.StepsTaken != n {
			return nil, Configf("results", "length mismatch: %d vs %d", r.StepsTaken, n)
		}
		for i := 0; i < n; i++ {
			avg.Total[i] += r.Total[i]
			avg.EV[i] += r.EV[i]
			avg.IV[i] += r.IV[i]
		}
		for k, v := range r.Metrics {
			avg.Metrics[k] += v
		}
		avg.Warnings = append(avg.Warnings, r.Warnings...)
	}

	scale := 1 / float64(len(results))
	for i := 0; i < n; i++ {
		avg.Total[i] *= scale
		avg.EV[i] *= scale
		avg.IV[i] *= scale
	}
	for k := range avg.Metrics {
		avg.Metrics[k] *= scale
	}
	return avg, nil
}

// ParallelFor executes a function in parallel over a range [0, n)
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	ParallelForN(n, minChunk, runtime.GOMAXPROCS(0), fn)
}

// ParallelForN is ParallelFor with an explicit worker count. It returns once
// every chunk has completed.
func ParallelForN(n, minChunk, numWorkers int, fn func(start, end int)) {
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || numWorkers <= 1 {
		fn(0, n)
		return
	}

	workers := numWorkers
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}
