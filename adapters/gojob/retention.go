package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-engage/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const JobIDJournalPrune = core.JournalPruneJobID

// RetryPolicy bounds how often a failing prune request goes back on the
// queue.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

type RetentionOptions struct {
	Policy     core.JournalRetentionPolicy
	Retry      RetryPolicy
	RetryDelay time.Duration
	Logger     core.Logger
	Hook       core.JobWorkerHook
}

// SchedulePrune enqueues a journal prune request on a go-job queue.
func SchedulePrune(ctx context.Context, enqueuer queue.Enqueuer, policy core.JournalRetentionPolicy) error {
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return core.ScheduleJournalPrune(ctx, pruneEnqueuer{queue: enqueuer}, policy)
}

// NewRetentionRunner builds a journal retention runner that consumes prune
// requests from a go-job dequeuer.
func NewRetentionRunner(dequeuer queue.Dequeuer, pruner core.JournalPruner, opts RetentionOptions) (*core.JournalRetentionRunner, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	if pruner == nil {
		return nil, fmt.Errorf("gojob: journal pruner is required")
	}
	return &core.JournalRetentionRunner{
		Dequeuer:   &pruneDequeuer{queue: dequeuer, policy: opts.Retry, attempts: map[string]int{}},
		Pruner:     pruner,
		Policy:     opts.Policy,
		Logger:     opts.Logger,
		RetryDelay: opts.RetryDelay,
		Hook:       opts.Hook,
	}, nil
}

// nackOptions clamps a runner nack for the given delivery attempt. Past
// MaxAttempts the request is dropped or dead-lettered, never requeued.
func (p RetryPolicy) nackOptions(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter && (p.MaxAttempts <= 0 || attempt < p.MaxAttempts) {
		out.Requeue = true
	}
	return out
}

type pruneEnqueuer struct {
	queue queue.Enqueuer
}

func (e pruneEnqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: prune message is required")
	}
	return e.queue.Enqueue(ctx, &job.ExecutionMessage{
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		Parameters:     maps.Clone(msg.Parameters),
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    job.DeduplicationPolicy(msg.DedupPolicy),
	})
}

// pruneDequeuer counts deliveries per idempotency key so a prune request
// that keeps failing reaches RetryPolicy.MaxAttempts.
type pruneDequeuer struct {
	queue  queue.Dequeuer
	policy RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

// Dequeue returns a nil delivery when the queue has nothing to hand out.
func (d *pruneDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	delivery, err := d.queue.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return &pruneDelivery{
		delivery: delivery,
		policy:   d.policy,
		attempt:  d.nextAttempt(delivery.Message()),
	}, nil
}

func (d *pruneDequeuer) nextAttempt(msg *job.ExecutionMessage) int {
	if msg == nil || strings.TrimSpace(msg.IdempotencyKey) == "" {
		return 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[msg.IdempotencyKey]++
	return d.attempts[msg.IdempotencyKey]
}

type pruneDelivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
}

func (d *pruneDelivery) Message() *core.JobExecutionMessage {
	msg := d.delivery.Message()
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     maps.Clone(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    string(msg.DedupPolicy),
	}
}

func (d *pruneDelivery) Ack(ctx context.Context) error {
	return d.delivery.Ack(ctx)
}

func (d *pruneDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.delivery.Nack(ctx, d.policy.nackOptions(opts, d.attempt))
}

var (
	_ core.JobEnqueuer   = pruneEnqueuer{}
	_ core.JobDequeuer   = (*pruneDequeuer)(nil)
	_ core.JobDelivery   = (*pruneDelivery)(nil)
	_ core.JournalPruner = (*core.MemoryJournal)(nil)
)
