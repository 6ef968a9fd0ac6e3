package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	JournalPruneJobID = "engage.journal.prune"

	journalPruneParamTTLSeconds = "ttl_seconds"
	journalPruneParamRowCap     = "row_cap"

	defaultJournalPruneRetryDelay = 30 * time.Second
)

// NewJournalPruneMessage builds the queue message that asks a retention
// runner to prune the journal. Zero policy fields fall back to the runner
// policy.
func NewJournalPruneMessage(policy JournalRetentionPolicy) *JobExecutionMessage {
	params := map[string]any{}
	if policy.TTL > 0 {
		params[journalPruneParamTTLSeconds] = int64(policy.TTL / time.Second)
	}
	if policy.RowCap > 0 {
		params[journalPruneParamRowCap] = policy.RowCap
	}
	return &JobExecutionMessage{
		JobID:          JournalPruneJobID,
		Parameters:     params,
		IdempotencyKey: fmt.Sprintf("%s:%d:%d", JournalPruneJobID, int64(policy.TTL/time.Second), policy.RowCap),
		DedupPolicy:    "drop",
	}
}

// ScheduleJournalPrune enqueues a prune request.
func ScheduleJournalPrune(ctx context.Context, enqueuer JobEnqueuer, policy JournalRetentionPolicy) error {
	if enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is required")
	}
	return enqueuer.Enqueue(ctx, NewJournalPruneMessage(policy))
}

// JournalRetentionRunner consumes prune requests from a job queue.
type JournalRetentionRunner struct {
	Dequeuer   JobDequeuer
	Pruner     JournalPruner
	Policy     JournalRetentionPolicy
	Logger     Logger
	RetryDelay time.Duration
	Hook       JobWorkerHook
}

// RunOnce handles a single delivery. Messages for other jobs are requeued
// untouched.
func (r *JournalRetentionRunner) RunOnce(ctx context.Context) (int, error) {
	if r == nil || r.Dequeuer == nil || r.Pruner == nil {
		return 0, fmt.Errorf("core: journal retention runner requires a dequeuer and a pruner")
	}
	delivery, err := r.Dequeuer.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	if delivery == nil {
		return 0, nil
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JournalPruneJobID {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		return 0, delivery.Nack(ctx, JobNackOptions{Requeue: true, Reason: "unsupported job " + jobID})
	}

	event := JobWorkerEvent{Message: msg, Attempt: 1, StartedAt: time.Now().UTC()}
	r.hookStart(ctx, event)

	policy, err := r.resolvePolicy(msg.Parameters)
	if err != nil {
		event.Err = err
		event.Duration = time.Since(event.StartedAt)
		r.hookFailure(ctx, event)
		return 0, errors.Join(err, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()}))
	}

	deleted, err := r.Pruner.Prune(ctx, policy)
	event.Duration = time.Since(event.StartedAt)
	if err != nil {
		event.Err = err
		event.Delay = r.retryDelay()
		r.hookRetry(ctx, event)
		logWithLevel(ctx, r.Logger, "error", "journal prune failed", map[string]any{
			"job_id": JournalPruneJobID,
			"error":  err.Error(),
		})
		return 0, errors.Join(err, delivery.Nack(ctx, JobNackOptions{
			Delay:   event.Delay,
			Requeue: true,
			Reason:  err.Error(),
		}))
	}
	r.hookSuccess(ctx, event)
	logWithLevel(ctx, r.Logger, "info", "journal pruned", map[string]any{
		"job_id":  JournalPruneJobID,
		"deleted": deleted,
		"ttl":     policy.TTL.String(),
		"row_cap": policy.RowCap,
	})
	return deleted, delivery.Ack(ctx)
}

// Run processes deliveries until ctx is canceled.
func (r *JournalRetentionRunner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logWithLevel(ctx, r.Logger, "warn", "journal retention iteration failed", map[string]any{"error": err.Error()})
		}
	}
}

func (r *JournalRetentionRunner) resolvePolicy(params map[string]any) (JournalRetentionPolicy, error) {
	policy := r.Policy
	if raw, ok := params[journalPruneParamTTLSeconds]; ok {
		seconds, err := intParam(raw)
		if err != nil || seconds < 0 {
			return JournalRetentionPolicy{}, fmt.Errorf("core: invalid %s parameter %v", journalPruneParamTTLSeconds, raw)
		}
		policy.TTL = time.Duration(seconds) * time.Second
	}
	if raw, ok := params[journalPruneParamRowCap]; ok {
		rowCap, err := intParam(raw)
		if err != nil || rowCap < 0 || rowCap > math.MaxInt32 {
			return JournalRetentionPolicy{}, fmt.Errorf("core: invalid %s parameter %v", journalPruneParamRowCap, raw)
		}
		policy.RowCap = int(rowCap)
	}
	if policy.TTL <= 0 && policy.RowCap <= 0 {
		return JournalRetentionPolicy{}, fmt.Errorf("core: journal retention policy requires ttl or row cap")
	}
	return policy, nil
}

func (r *JournalRetentionRunner) retryDelay() time.Duration {
	if r.RetryDelay > 0 {
		return r.RetryDelay
	}
	return defaultJournalPruneRetryDelay
}

func (r *JournalRetentionRunner) hookStart(ctx context.Context, event JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnStart(ctx, event)
	}
}

func (r *JournalRetentionRunner) hookSuccess(ctx context.Context, event JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnSuccess(ctx, event)
	}
}

func (r *JournalRetentionRunner) hookFailure(ctx context.Context, event JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnFailure(ctx, event)
	}
}

func (r *JournalRetentionRunner) hookRetry(ctx context.Context, event JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnRetry(ctx, event)
	}
}

// intParam accepts the numeric shapes produced by JSON and YAML decoders.
func intParam(raw any) (int64, error) {
	switch typed := raw.(type) {
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(typed), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
	case interface{ Int64() (int64, error) }:
		return typed.Int64()
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
