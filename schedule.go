package mrengine

import "context"

// SchedulePolicy abstracts how map and reduce tasks are dispatched across
// workers, per spec.md §4.6. Run blocks until every task has either
// completed or failed; a failing task must never prevent its peers from
// running. onError is invoked (from whichever goroutine ran the task) for
// each task that returns an error; it must be safe to call concurrently.
type SchedulePolicy interface {
	Run(ctx context.Context, tasks []func(context.Context) error, onError func(taskIndex int, err error)) (actualWorkers int, err error)
}
