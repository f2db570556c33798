package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-provider-link/core"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultPollInterval = time.Second
	defaultTaskTimeout  = 30 * time.Second
)

// Worker pulls upload tasks off a go-job queue and runs the queueWorker hook
// for each, acking on success and nacking through the retry policy.
type Worker struct {
	dequeuer     queue.Dequeuer
	run          core.QueueWorkerFunc
	policy       RetryPolicy
	hooks        []worker.Hook
	logger       core.Logger
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithHooks(hooks ...worker.Hook) WorkerOption {
	return func(w *Worker) {
		for _, hook := range hooks {
			if hook != nil {
				w.hooks = append(w.hooks, hook)
			}
		}
	}
}

func WithLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = glog.Ensure(logger)
	}
}

func WithTaskTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func NewWorker(dequeuer queue.Dequeuer, run core.QueueWorkerFunc, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if run == nil {
		return nil, fmt.Errorf("gojob: queue worker hook is required")
	}
	w := &Worker{
		dequeuer:     dequeuer,
		run:          run,
		policy:       DefaultRetryPolicy(),
		logger:       glog.Ensure(nil),
		timeout:      defaultTaskTimeout,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		attempts:     map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		processed, err := w.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("upload queue dequeue failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessOne handles at most one delivery. It reports whether a delivery
// was taken off the queue. Task failures are settled on the delivery and are
// not returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if w == nil || w.dequeuer == nil {
		return false, fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	task, err := TaskFromMessage(msg)
	if err != nil {
		w.logger.Error("upload task rejected", "error", err)
		return true, delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		})
	}

	key := attemptKey(task)
	attempt := w.nextAttempt(key, delivery)
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: w.now()}
	w.emit(ctx, event, worker.Hook.OnStart)

	runErr := w.runTask(ctx, task)
	event.Duration = w.now().Sub(event.StartedAt)
	if runErr == nil {
		w.forget(key)
		w.emit(ctx, event, worker.Hook.OnSuccess)
		return true, delivery.Ack(ctx)
	}

	event.Err = runErr
	opts := w.policy.NackFor(attempt, runErr)
	requeue := opts.Disposition == queue.NackDispositionRetry
	if requeue {
		event.Delay = opts.Delay
		w.emit(ctx, event, worker.Hook.OnRetry)
	} else {
		w.forget(key)
		w.emit(ctx, event, worker.Hook.OnFailure)
	}
	w.logger.Error("upload task failed",
		"token_id", task.TokenID,
		"attempt", attempt,
		"requeue", requeue,
		"error", runErr,
	)
	return true, delivery.Nack(ctx, opts)
}

func (w *Worker) runTask(ctx context.Context, task core.UploadTask) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("gojob: queue worker panic: %v", recovered)
		}
	}()
	err = w.run(runCtx, task)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("gojob: queue worker exceeded %s", w.timeout)
	}
	return err
}

func (w *Worker) emit(ctx context.Context, event worker.Event, fn func(worker.Hook, context.Context, worker.Event)) {
	for _, hook := range w.hooks {
		fn(hook, ctx, event)
	}
}

// nextAttempt prefers the count tracked by a durable queue and falls back to
// a per-process counter for deliveries that do not carry one.
func (w *Worker) nextAttempt(key string, delivery queue.Delivery) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if reader, ok := delivery.(attemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			w.attempts[key] = attempts
			return attempts
		}
	}
	w.attempts[key]++
	return w.attempts[key]
}

type attemptsReader interface {
	Attempts() int
}

func (w *Worker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func attemptKey(task core.UploadTask) string {
	return strings.TrimSpace(task.TokenID)
}

// LoggingHook reports worker events through a logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("upload task started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("upload task succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("upload task dead-lettered", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("upload task retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "token_id", message.IdempotencyKey)
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

var _ worker.Hook = (*LoggingHook)(nil)
