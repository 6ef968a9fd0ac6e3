package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ConfigurationObserver receives failures to present a workflow UI. Errors
// raised while the library configures itself in the background are held back
// until the application actually asks to show a dialog.
type ConfigurationObserver interface {
	DialogFailedToShow(ctx context.Context, err *EngageError)
}

// AuthenticationObserver receives the outcome of authentication attempts.
//
// Exactly one of AuthenticationSucceeded, AuthenticationFailed or
// AuthenticationNotCompleted is delivered per attempt. Token URL
// notifications only follow AuthenticationSucceeded for the same attempt.
type AuthenticationObserver interface {
	// AuthenticationNotCompleted reports an attempt that ended without error
	// and without success: the user backed out, the attempt was canceled, or
	// it timed out.
	AuthenticationNotCompleted(ctx context.Context)

	// AuthenticationSucceeded carries the profile data reported by the
	// provider. The AuthInfo is a private copy.
	AuthenticationSucceeded(ctx context.Context, info AuthInfo, provider Provider)

	// AuthenticationFailed reports an unrecoverable failure. It is never
	// sent for a canceled attempt.
	AuthenticationFailed(ctx context.Context, err *EngageError, provider Provider)

	// TokenURLReached reports a successful post of the auth token to the
	// integration's token URL. Headers are empty when the driver did not
	// capture them.
	TokenURLReached(ctx context.Context, result TokenURLResult, provider Provider)

	// TokenURLCallFailed reports a failed token URL call. The attempt itself
	// already succeeded at the provider.
	TokenURLCallFailed(ctx context.Context, tokenURL string, err *EngageError, provider Provider)
}

// PublishingObserver receives the outcome of social publishing sessions.
// Item notifications may arrive any number of times before the single
// session terminal notification.
type PublishingObserver interface {
	PublishingNotCompleted(ctx context.Context)
	PublishingCompleted(ctx context.Context)
	ActivityPublished(ctx context.Context, activity Activity, provider Provider)
	ActivityPublishFailed(ctx context.Context, activity Activity, err *EngageError, provider Provider)
}

// Delegate implements every notification group.
type Delegate interface {
	ConfigurationObserver
	AuthenticationObserver
	PublishingObserver
}

// TokenURLResult is the response of the integration's token URL.
type TokenURLResult struct {
	URL     string
	Headers ResponseHeaders
	Payload string
}

func (r TokenURLResult) clone() TokenURLResult {
	r.Headers = r.Headers.Clone()
	return r
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// DeliveryHook observes notifications around observer delivery. Hooks cannot
// veto a notification.
type DeliveryHook interface {
	Name() string
	OnNotification(ctx context.Context, notification Notification) error
}

type NotificationJournal interface {
	Record(ctx context.Context, notification Notification) error
	List(ctx context.Context, filter NotificationFilter) (NotificationPage, error)
}

type OutcomeReader interface {
	GetOutcome(ctx context.Context, scopeID string) (Notification, error)
}

type JournalRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type JournalPruner interface {
	Prune(ctx context.Context, policy JournalRetentionPolicy) (deleted int, err error)
}

type Clock func() time.Time

type IDGenerator func() string

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// WorkflowService is the request surface used by command handlers.
type WorkflowService interface {
	RequestAuthentication(ctx context.Context, req AuthenticationRequest) (*AuthAttempt, error)
	RequestPublishing(ctx context.Context, req PublishingRequest) (*PublishSession, error)
	ShowDialog(ctx context.Context, req DialogRequest) error
	CancelAuthentication(ctx context.Context) (int, error)
	CancelPublishing(ctx context.Context) (int, error)
}
