package goOTP

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	errDelivery          = errors.New("delivery failed")
	errDeliveryQueueFull = fmt.Errorf("%w: queue full", errDelivery)
)

type deliveryReporter func(ctx context.Context, d Delivery, err error)

// deliveryDispatcher hands codes to the Deliverer either inline with a
// timeout or through a bounded queue drained by a fixed worker pool.
type deliveryDispatcher struct {
	deliverer Deliverer
	timeout   time.Duration
	report    deliveryReporter

	async     bool
	ch        chan Delivery
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func newDeliveryDispatcher(cfg DeliveryConfig, deliverer Deliverer, report deliveryReporter) *deliveryDispatcher {
	d := &deliveryDispatcher{
		deliverer: deliverer,
		timeout:   cfg.Timeout,
		report:    report,
		async:     cfg.Async,
	}
	if !cfg.Async {
		return d
	}

	d.ch = make(chan Delivery, cfg.QueueSize)
	d.done = make(chan struct{})
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *deliveryDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(context.Background(), msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(context.Background(), msg)
				default:
					return
				}
			}
		}
	}
}

func (d *deliveryDispatcher) deliver(ctx context.Context, msg Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.deliverer.Send(ctx, msg)
	if err != nil {
		err = fmt.Errorf("%w: %w", errDelivery, err)
	}
	if d.report != nil {
		d.report(ctx, msg, err)
	}
	return err
}

// Send delivers msg. In async mode it only enqueues and the returned error
// reports a full or closed queue; the outcome of the send itself goes to the
// reporter.
func (d *deliveryDispatcher) Send(ctx context.Context, msg Delivery) error {
	if !d.async {
		// The request may be cancelled right after the code is stored; the
		// delivery still gets its full timeout.
		return d.deliver(context.WithoutCancel(ctx), msg)
	}

	if d.closed.Load() {
		err := fmt.Errorf("%w: dispatcher closed", errDelivery)
		if d.report != nil {
			d.report(ctx, msg, err)
		}
		return err
	}

	select {
	case d.ch <- msg:
		return nil
	default:
		if d.report != nil {
			d.report(ctx, msg, errDeliveryQueueFull)
		}
		return errDeliveryQueueFull
	}
}

// Backlog is the number of queued, unsent deliveries.
func (d *deliveryDispatcher) Backlog() int {
	if d == nil || d.ch == nil {
		return 0
	}
	return len(d.ch)
}

// Close stops the workers after draining the queue.
func (d *deliveryDispatcher) Close() {
	if d == nil || !d.async {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
