// Package community implements distance-based community analyses: PERMANOVA, SIMPER
// and non-metric multidimensional scaling.
package community

import (
	"context"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// trialRand is the generator for one permutation trial or restart. Seeding from
// (seed, trial) makes every trial independent of scheduling and worker count.
func trialRand(seed uint64, trial int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(trial)+1))
}

// runTrials calls fn for trials 0..n-1 on up to workers goroutines. fn writes its
// result by trial index; no ordering between trials is assumed.
func runTrials(ctx context.Context, n, workers int, fn func(trial int)) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)
	if workers <= 1 {
		for t := 0; t < n; t++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(t)
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			for t := lo; t < hi; t++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn(t)
			}
			return nil
		})
	}
	return g.Wait()
}
