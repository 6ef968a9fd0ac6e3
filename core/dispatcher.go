package core

import (
	"context"
	"errors"
	"sync"
)

var errFlushFromObserver = errors.New("core: flush cannot be called from an observer")

type deliveringContextKey struct{}

// InDelivery reports whether ctx belongs to an observer callback.
func InDelivery(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	delivering, _ := ctx.Value(deliveringContextKey{}).(bool)
	return delivering
}

type dispatchItem struct {
	ctx          context.Context
	notification Notification
	barrier      chan struct{}
}

// dispatcher is the single execution context for observer callbacks. The
// queue is unbounded so enqueue never blocks the workflow driver, and the
// sequence number is assigned at enqueue so queue order and sequence order
// agree.
type dispatcher struct {
	deliver        func(ctx context.Context, notification Notification)
	logger         Logger
	backlogWarning int

	mu       sync.Mutex
	queue    []dispatchItem
	sequence uint64
	stopping bool
	warned   bool

	wake     chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

func newDispatcher(
	deliver func(ctx context.Context, notification Notification),
	logger Logger,
	backlogWarning int,
) *dispatcher {
	d := &dispatcher{
		deliver:        deliver,
		logger:         logger,
		backlogWarning: backlogWarning,
		wake:           make(chan struct{}, 1),
		doneCh:         make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue stamps the notification with the next sequence number and queues
// it. Callers hold the lock of the attempt or session that produced it.
func (d *dispatcher) enqueue(ctx context.Context, notification Notification) (Notification, error) {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return notification, ErrServiceClosed
	}
	d.sequence++
	notification.Sequence = d.sequence
	d.queue = append(d.queue, dispatchItem{ctx: detachContext(ctx), notification: notification})
	backlog := len(d.queue)
	warn := d.backlogWarning > 0 && backlog > d.backlogWarning && !d.warned
	if warn {
		d.warned = true
	}
	d.mu.Unlock()
	d.signal()

	if warn {
		logWithLevel(ctx, d.logger, "warn", "notification backlog above threshold", map[string]any{
			"backlog":   backlog,
			"threshold": d.backlogWarning,
		})
	}
	return notification, nil
}

// flush waits until everything queued before the call has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	if InDelivery(ctx) {
		return errFlushFromObserver
	}
	select {
	case <-d.doneCh:
		return nil
	default:
	}
	barrier := make(chan struct{})
	d.mu.Lock()
	d.queue = append(d.queue, dispatchItem{barrier: barrier})
	d.mu.Unlock()
	d.signal()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-barrier:
		return nil
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop refuses new notifications and waits for the queue to drain. Called
// from an observer it returns at once; the queue still drains behind it.
func (d *dispatcher) stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopping = true
		d.mu.Unlock()
		d.signal()
	})
	if InDelivery(ctx) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.doneCh)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.queue = nil
			d.warned = false
			stopping := d.stopping
			d.mu.Unlock()
			if stopping {
				return
			}
			<-d.wake
			continue
		}
		item := d.queue[0]
		d.queue[0] = dispatchItem{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if item.barrier != nil {
			close(item.barrier)
			continue
		}
		if d.deliver != nil {
			d.deliver(context.WithValue(item.ctx, deliveringContextKey{}, true), item.notification)
		}
	}
}

// detachContext keeps request values for logging but drops cancellation:
// a notification is delivered even when the request that raised it is gone.
func detachContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
