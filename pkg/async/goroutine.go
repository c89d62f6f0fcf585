package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
)

// SafeGo executes a function in a goroutine with panic recovery and an
// optional timeout (0 disables it). Errors and panics are logged, never
// propagated.
//
// Example:
//
//	SafeGo(ctx, logger, 0, "thresholds watcher", watcher.Run)
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := withOptionalTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// Task is one unit of a Gather
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Gather runs every task concurrently, at most limit at a time (limit <= 0
// means unbounded), and waits for all of them. A task's failure or panic
// never cancels its siblings. The returned slice holds each task's error at
// the task's index; a panic is reported as an error carrying the stack.
func Gather(ctx context.Context, limit int, timeout time.Duration, tasks []Task) []error {
	errs := make([]error, len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			errs[i] = runTask(ctx, timeout, task)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func runTask(parent context.Context, timeout time.Duration, task Task) (err error) {
	ctx, cancel := withOptionalTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			err = fmt.Errorf("task %s: %w\n%s", task.Name, perr, debug.Stack())
		}
	}()

	return task.Run(ctx)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
