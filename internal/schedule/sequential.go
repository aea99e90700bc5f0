// Package schedule implements the two SchedulePolicy strategies spec.md
// §4.6 calls for: a sequential policy that runs tasks on the calling
// goroutine, and a bounded worker-pool policy sized to hardware
// concurrency. Both generalize the teacher's GetNextTask/CompleteMapTask
// polling loop (pkg/toyreduce/master/scheduler.go) from an HTTP-polled
// task queue into an in-process one: pull the next unit of work from a
// shared cursor, run it, mark it done-or-failed, never block a peer on
// one task's failure.
package schedule

import "context"

// Sequential executes every task on the calling goroutine, in the order
// given. actualWorkers is always 1.
type Sequential struct{}

func (Sequential) Run(ctx context.Context, tasks []func(context.Context) error, onError func(int, error)) (int, error) {
	for i, task := range tasks {
		if err := task(ctx); err != nil {
			if onError != nil {
				onError(i, err)
			}
		}
	}
	return 1, nil
}
