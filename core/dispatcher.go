package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InlineDispatcher runs the queueWorker hook on its own goroutine. The task
// outlives the request that produced it.
type InlineDispatcher struct {
	worker  QueueWorkerFunc
	timeout time.Duration
	logger  Logger
	wg      sync.WaitGroup
}

func NewInlineDispatcher(worker QueueWorkerFunc, timeout time.Duration, logger Logger) *InlineDispatcher {
	return &InlineDispatcher{
		worker:  worker,
		timeout: timeout,
		logger:  glog.Ensure(logger),
	}
}

func (d *InlineDispatcher) Enqueue(ctx context.Context, task UploadTask) error {
	if d == nil || d.worker == nil {
		return fmt.Errorf("core: inline dispatcher has no worker")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, err := callHook(runCtx, d.timeout, HookQueueWorker, func(hookCtx context.Context) (struct{}, error) {
			return struct{}{}, d.worker(hookCtx, task)
		})
		if err != nil {
			d.logger.Error("upload task failed",
				"token_id", task.TokenID,
				"correlation_code", task.CorrelationCode,
				"error", err,
			)
			return
		}
		d.logger.Debug("upload task completed", "token_id", task.TokenID)
	}()
	return nil
}

// Wait blocks until every dispatched task has returned.
func (d *InlineDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

var _ Dispatcher = (*InlineDispatcher)(nil)
