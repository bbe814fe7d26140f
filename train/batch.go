package train

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// GenerateBatch draws one perturbation of length n per seed, in parallel.
// out[i] is bit-identical to Generate(seeds[i], n).
func GenerateBatch(ctx context.Context, seeds []Seed, n int) ([][]float32, error) {
	out := make([][]float32, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Generate(seed, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
