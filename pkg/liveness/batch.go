package liveness

import (
	"context"
	"sync"
)

// BatchResult is the outcome of one video of a batch.
type BatchResult struct {
	Path    string
	Verdict Verdict
	Err     error
}

// AnalyzeBatch analyzes independent videos on a pool of workers. Results are
// returned in the order of paths. Each video gets its own state.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, paths []string, workers int) []BatchResult {
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, len(paths))

	results := make([]BatchResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				v, err := a.Analyze(ctx, paths[i])
				results[i] = BatchResult{Path: paths[i], Verdict: v, Err: err}
			}
		}()
	}

	for i := range paths {
		if ctx.Err() != nil {
			results[i] = BatchResult{Path: paths[i], Err: &AnalysisError{Phase: PhaseInit, Err: ctx.Err()}}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	a.log.WithField("videos", len(paths)).Debug("Batch finished")
	return results
}
