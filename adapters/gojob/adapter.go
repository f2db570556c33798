package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provider-link/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDUpload      = "provider_link.upload"
	ScriptPathUpload = "provider_link/upload"

	DefaultDedupPolicy = "drop"
)

// RetryPolicy bounds upload retries: the delay grows from BaseDelay and is
// capped at MaxDelay, and no requeue happens past MaxAttempts.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}
}

// NackFor returns the nack options for a failed attempt (1-based).
func (p RetryPolicy) NackFor(attempt int, cause error) queue.NackOptions {
	if attempt < 1 {
		attempt = 1
	}
	opts := queue.NackOptions{Disposition: queue.NackDispositionRetry}
	if cause != nil {
		opts.Reason = strings.TrimSpace(cause.Error())
	}
	if p.BaseDelay > 0 {
		delay := p.BaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
		}
		opts.Delay = delay
	}
	if p.MaxDelay > 0 && opts.Delay > p.MaxDelay {
		opts.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Delay = 0
		opts.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			opts.Disposition = queue.NackDispositionDeadLetter
		}
	}
	return opts
}

// ToExecutionMessage maps an upload task to a go-job message keyed by the
// token id, so a redelivered callback never queues the same upload twice.
func ToExecutionMessage(task core.UploadTask, dedupPolicy string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDUpload,
		ScriptPath:     ScriptPathUpload,
		Parameters:     task.Parameters(),
		IdempotencyKey: strings.TrimSpace(task.TokenID),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(dedupPolicy)),
	}
}

// TaskFromMessage rebuilds the upload task carried by msg.
func TaskFromMessage(msg *job.ExecutionMessage) (core.UploadTask, error) {
	if msg == nil {
		return core.UploadTask{}, fmt.Errorf("gojob: execution message is required")
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != JobIDUpload {
		return core.UploadTask{}, fmt.Errorf("gojob: unexpected job id %q", jobID)
	}
	return core.UploadTaskFromParameters(msg.Parameters)
}

type Dispatcher struct {
	enqueuer    queue.Enqueuer
	dedupPolicy string
}

type DispatcherOption func(*Dispatcher)

func WithDedupPolicy(policy string) DispatcherOption {
	return func(d *Dispatcher) {
		d.dedupPolicy = strings.TrimSpace(policy)
	}
}

func NewDispatcher(enqueuer queue.Enqueuer, opts ...DispatcherOption) *Dispatcher {
	dispatcher := &Dispatcher{enqueuer: enqueuer, dedupPolicy: DefaultDedupPolicy}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher
}

func (d *Dispatcher) Enqueue(ctx context.Context, task core.UploadTask) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(task.TokenID) == "" {
		return fmt.Errorf("gojob: upload task token id is required")
	}
	_, err := d.enqueuer.Enqueue(ctx, ToExecutionMessage(task, d.dedupPolicy))
	return err
}

var _ core.Dispatcher = (*Dispatcher)(nil)
