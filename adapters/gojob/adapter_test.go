package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-provider-link/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

func TestExecutionMessageMapping(t *testing.T) {
	task := core.UploadTask{
		TokenID:         "tok_1",
		CorrelationCode: "code_1",
		AppID:           "appId",
		LinkageData:     map[string]any{"accessToken": "grant_accessToken"},
		TargetURL:       "http://myprovider.example.org/config",
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg := ToExecutionMessage(task, DefaultDedupPolicy)
	if msg.JobID != JobIDUpload {
		t.Fatalf("expected job id %q, got %q", JobIDUpload, msg.JobID)
	}
	if msg.IdempotencyKey != "tok_1" {
		t.Fatalf("expected token id idempotency key, got %q", msg.IdempotencyKey)
	}
	if string(msg.DedupPolicy) != DefaultDedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", DefaultDedupPolicy, msg.DedupPolicy)
	}

	// Queue backends persist parameters as JSON.
	raw, err := json.Marshal(msg.Parameters)
	if err != nil {
		t.Fatalf("marshal parameters: %v", err)
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal parameters: %v", err)
	}
	msg.Parameters = decoded

	got, err := TaskFromMessage(msg)
	if err != nil {
		t.Fatalf("task from message: %v", err)
	}
	if got.TokenID != task.TokenID || got.TargetURL != task.TargetURL || got.AppID != task.AppID {
		t.Fatalf("unexpected task %+v", got)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("expected created_at %s, got %s", task.CreatedAt, got.CreatedAt)
	}
	if got.LinkageData["accessToken"] != "grant_accessToken" {
		t.Fatalf("expected linkage data to survive mapping, got %v", got.LinkageData)
	}
}

func TestTaskFromMessageRejectsForeignJobs(t *testing.T) {
	if _, err := TaskFromMessage(nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
	if _, err := TaskFromMessage(&job.ExecutionMessage{JobID: "other.job"}); err == nil {
		t.Fatalf("expected error for foreign job id")
	}
}

func TestDispatcherEnqueue(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	dispatcher := NewDispatcher(enqueuer, WithDedupPolicy("merge"))

	if err := dispatcher.Enqueue(context.Background(), core.UploadTask{TokenID: "tok_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDUpload {
		t.Fatalf("expected mapped go-job message")
	}
	if string(enqueuer.last.DedupPolicy) != "merge" {
		t.Fatalf("expected dedup policy override, got %q", enqueuer.last.DedupPolicy)
	}

	if err := dispatcher.Enqueue(context.Background(), core.UploadTask{}); err == nil {
		t.Fatalf("expected error for task without token id")
	}
	if err := NewDispatcher(nil).Enqueue(context.Background(), core.UploadTask{TokenID: "x"}); err == nil {
		t.Fatalf("expected error without enqueuer")
	}
}

func TestRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       4 * time.Second,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	}

	first := policy.NackFor(1, errors.New(" transient "))
	if first.Disposition != queue.NackDispositionRetry || first.Delay != 4*time.Second || first.Reason != "transient" {
		t.Fatalf("unexpected first nack %+v", first)
	}
	second := policy.NackFor(2, nil)
	if second.Disposition != queue.NackDispositionRetry || second.Delay != 8*time.Second {
		t.Fatalf("unexpected second nack %+v", second)
	}
	if bounded := (RetryPolicy{BaseDelay: 4 * time.Second, MaxDelay: 10 * time.Second}).NackFor(5, nil); bounded.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", bounded.Delay)
	}

	last := policy.NackFor(3, errors.New("still failing"))
	if last.Disposition != queue.NackDispositionDeadLetter || last.Delay != 0 {
		t.Fatalf("expected dead letter without delay on max attempts, got %+v", last)
	}

	policy.DeadLetterOnMax = false
	if dropped := policy.NackFor(3, nil); dropped.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed disposition without dead lettering, got %+v", dropped)
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch_1", EnqueuedAt: time.Now()}, nil
}

type stubQueueDequeuer struct {
	deliveries []queue.Delivery
	err        error
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.deliveries) == 0 {
		return nil, nil
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}
