package schedule

import (
	"context"
	"sync"
	"sync/atomic"

	"mrengine/internal/platform"
)

// CPUParallel runs tasks across a bounded worker pool sized to
// min(idealWorkers, hardware concurrency). Each worker pulls the next task
// index from a shared, mutex-free atomic cursor, runs it, and continues;
// an erroring task never stops its peers. Run blocks until the pool has
// joined, mirroring the original library's joined_thread_group dtor
// semantics with a sync.WaitGroup instead of RAII.
type CPUParallel struct {
	// IdealWorkers is the requested concurrency; 0 means "auto" (use
	// hardware concurrency).
	IdealWorkers uint
}

func (p CPUParallel) Run(ctx context.Context, tasks []func(context.Context) error, onError func(int, error)) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	workers := int(p.IdealWorkers)
	if workers <= 0 {
		workers = platform.HardwareConcurrency()
	}
	if workers > platform.HardwareConcurrency() {
		workers = platform.HardwareConcurrency()
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}
	if workers < 1 {
		workers = 1
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := cursor.Add(1) - 1
				if int(i) >= len(tasks) {
					return
				}
				if err := tasks[i](ctx); err != nil && onError != nil {
					onError(int(i), err)
				}
			}
		}()
	}
	wg.Wait()

	return workers, nil
}
