package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Job func(ctx context.Context) error

// RunPool executes jobs in order with at most maxWorkers concurrently. Once
// ctx is done no further job is started; jobs already running finish.
// Returns all errors.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := job(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs
}
