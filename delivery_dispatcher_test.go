package goOTP

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingDeliverer struct {
	gate chan struct{}
	mu   sync.Mutex
	sent []Delivery
}

func (d *blockingDeliverer) Send(ctx context.Context, msg Delivery) error {
	select {
	case <-d.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return nil
}

type reportLog struct {
	mu   sync.Mutex
	errs []error
}

func (r *reportLog) report(_ context.Context, _ Delivery, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *reportLog) snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func TestDeliverySyncReportsFailure(t *testing.T) {
	log := &reportLog{}
	cause := errors.New("smtp 550")
	d := newDeliveryDispatcher(DeliveryConfig{Timeout: time.Second}, DelivererFunc(func(context.Context, Delivery) error {
		return cause
	}), log.report)

	err := d.Send(context.Background(), Delivery{Email: testEmail})
	if !errors.Is(err, errDelivery) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped delivery error, got %v", err)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] == nil {
		t.Fatalf("expected one failure report, got %v", got)
	}
}

func TestDeliverySyncIgnoresCallerCancellation(t *testing.T) {
	var got context.Context
	d := newDeliveryDispatcher(DeliveryConfig{Timeout: time.Second}, DelivererFunc(func(ctx context.Context, _ Delivery) error {
		got = ctx
		return ctx.Err()
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Send(ctx, Delivery{Email: testEmail}); err != nil {
		t.Fatalf("expected delivery to outlive the request, got %v", err)
	}
	if _, ok := got.Deadline(); !ok {
		t.Fatal("expected the per-send timeout to apply")
	}
}

func TestDeliveryAsyncQueueFull(t *testing.T) {
	log := &reportLog{}
	deliverer := &blockingDeliverer{gate: make(chan struct{})}
	d := newDeliveryDispatcher(DeliveryConfig{
		Async:     true,
		QueueSize: 1,
		Workers:   1,
		Timeout:   5 * time.Second,
	}, deliverer, log.report)

	ctx := context.Background()
	// The worker takes the first message and blocks on the gate.
	if err := d.Send(ctx, Delivery{Email: "1@example.com"}); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for d.Backlog() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := d.Send(ctx, Delivery{Email: "2@example.com"}); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}
	if d.Backlog() != 1 {
		t.Fatalf("expected backlog 1, got %d", d.Backlog())
	}
	if err := d.Send(ctx, Delivery{Email: "3@example.com"}); !errors.Is(err, errDeliveryQueueFull) {
		t.Fatalf("expected errDeliveryQueueFull, got %v", err)
	}

	close(deliverer.gate)
	d.Close()

	deliverer.mu.Lock()
	sent := len(deliverer.sent)
	deliverer.mu.Unlock()
	if sent != 2 {
		t.Fatalf("expected queued messages drained on close, got %d", sent)
	}
	if err := d.Send(ctx, Delivery{Email: "4@example.com"}); !errors.Is(err, errDelivery) {
		t.Fatalf("expected error after close, got %v", err)
	}
}

func TestEngineAsyncDelivery(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Delivery.Async = true
		c.Delivery.Workers = 2
		c.Delivery.QueueSize = 8
	})
	ctx := context.Background()

	result, err := env.engine.RequestSignupCode(ctx, env.signupRequest())
	if err != nil {
		t.Fatalf("RequestSignupCode failed: %v", err)
	}
	if result.DeliveryFailed {
		t.Fatal("enqueued delivery must not be reported as failed")
	}

	env.engine.Close()
	if env.deliverer.Count() != 1 {
		t.Fatalf("expected one delivery after drain, got %d", env.deliverer.Count())
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeliverySuccess]; got != 1 {
		t.Fatalf("expected delivery success metric 1, got %d", got)
	}
}
