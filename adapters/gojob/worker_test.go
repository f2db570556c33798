package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-provider-link/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestWorkerAcksSuccessfulTask(t *testing.T) {
	delivery := &stubQueueDelivery{msg: ToExecutionMessage(core.UploadTask{TokenID: "tok_1"}, "")}
	hook := &capturingHook{}
	var ran []string
	w, err := NewWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{delivery}}, func(_ context.Context, task core.UploadTask) error {
		ran = append(ran, task.TokenID)
		return nil
	}, WithHooks(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	processed, err := w.ProcessOne(context.Background())
	if err != nil || !processed {
		t.Fatalf("expected processed delivery, got %v, %v", processed, err)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack only, got acked=%v nacked=%v", delivery.acked, delivery.nacked)
	}
	if len(ran) != 1 || ran[0] != "tok_1" {
		t.Fatalf("expected queue worker to run for tok_1, got %v", ran)
	}
	if hook.count("start") != 1 || hook.count("success") != 1 {
		t.Fatalf("expected start and success events, got %v", hook.events)
	}
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	msg := ToExecutionMessage(core.UploadTask{TokenID: "tok_retry"}, "")
	deliveries := []queue.Delivery{
		&stubQueueDelivery{msg: msg},
		&stubQueueDelivery{msg: msg},
	}
	hook := &capturingHook{}
	w, err := NewWorker(&stubQueueDequeuer{deliveries: append([]queue.Delivery(nil), deliveries...)}, func(context.Context, core.UploadTask) error {
		return errors.New("upload failed")
	}, WithHooks(hook), WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, DeadLetterOnMax: true}))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	for range deliveries {
		if _, err := w.ProcessOne(context.Background()); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	first := deliveries[0].(*stubQueueDelivery)
	if !first.nacked || first.nackOpts.Disposition != queue.NackDispositionRetry || first.nackOpts.Delay != time.Second {
		t.Fatalf("expected first failure to requeue with delay, got %+v", first.nackOpts)
	}
	second := deliveries[1].(*stubQueueDelivery)
	if second.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected second failure to dead letter, got %+v", second.nackOpts)
	}
	if hook.count("retry") != 1 || hook.count("failure") != 1 {
		t.Fatalf("expected one retry and one failure event, got %v", hook.events)
	}
}

func TestWorkerDeadLettersUndecodableMessage(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDUpload, Parameters: map[string]any{}}}
	w, err := NewWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{delivery}}, func(context.Context, core.UploadTask) error {
		t.Fatalf("queue worker must not run for invalid task")
		return nil
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected invalid task to be dead-lettered")
	}
}

func TestWorkerRecoversPanicsAndTimesOut(t *testing.T) {
	panicking := &stubQueueDelivery{msg: ToExecutionMessage(core.UploadTask{TokenID: "tok_panic"}, "")}
	w, err := NewWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{panicking}}, func(context.Context, core.UploadTask) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !panicking.nacked {
		t.Fatalf("expected panic to nack the delivery")
	}

	slow := &stubQueueDelivery{msg: ToExecutionMessage(core.UploadTask{TokenID: "tok_slow"}, "")}
	w, err = NewWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{slow}}, func(ctx context.Context, _ core.UploadTask) error {
		<-ctx.Done()
		return nil
	}, WithTaskTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !slow.nacked {
		t.Fatalf("expected timed out task to nack the delivery")
	}
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	w, err := NewWorker(&stubQueueDequeuer{}, func(context.Context, core.UploadTask) error { return nil },
		WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	if _, err := NewWorker(nil, func(context.Context, core.UploadTask) error { return nil }); err == nil {
		t.Fatalf("expected error without dequeuer")
	}
	if _, err := NewWorker(&stubQueueDequeuer{}, nil); err == nil {
		t.Fatalf("expected error without queue worker")
	}
}

type capturingHook struct {
	mu     sync.Mutex
	events []string
}

func (h *capturingHook) add(kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, kind)
}

func (h *capturingHook) count(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, event := range h.events {
		if event == kind {
			total++
		}
	}
	return total
}

func (h *capturingHook) OnStart(context.Context, worker.Event)   { h.add("start") }
func (h *capturingHook) OnSuccess(context.Context, worker.Event) { h.add("success") }
func (h *capturingHook) OnFailure(context.Context, worker.Event) { h.add("failure") }
func (h *capturingHook) OnRetry(context.Context, worker.Event)   { h.add("retry") }

var _ worker.Hook = (*capturingHook)(nil)
