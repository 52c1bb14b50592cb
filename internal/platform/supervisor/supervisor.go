// Package supervisor runs a process's long-lived tasks and turns an
// unrecoverable fault in any of them into a process exit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("task panicked")

// Task is a named long-lived unit of work. Run must return when ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run starts every task and waits. The first task to fail or panic cancels the
// others; its error is returned so the caller can exit non-zero and let the
// process manager restart it. A nil return means every task stopped cleanly.
func Run(ctx context.Context, logger *slog.Logger, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s: %w: %v", task.Name, ErrPanic, r)
					logger.Error("Unrecoverable fault in task", "task", task.Name, "panic", r, "stack", string(debug.Stack()))
				}
			}()

			logger.Debug("Task starting", "task", task.Name)
			if err := task.Run(gctx); err != nil {
				logger.Error("Task failed", "task", task.Name, "error", err)
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			logger.Debug("Task stopped", "task", task.Name)
			return nil
		})
	}
	return g.Wait()
}
