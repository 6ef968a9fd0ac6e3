package core

import (
	"context"
	"sync"
	"time"
)

// PublishSession is the driver side of one social publishing request. Item
// outcomes may be reported any number of times until the session ends with
// exactly one PublishingCompleted or PublishingNotCompleted.
//
// Complete does not cut off items that are still in flight: the session
// moves to closing and delivers PublishingCompleted once every begun item
// has reported, or once the item drain timeout elapses.
type PublishSession struct {
	id        string
	activity  Activity
	createdAt time.Time
	service   *Service

	mu         sync.Mutex
	state      SessionState
	inflight   map[*PublishItem]struct{}
	published  int
	failed     int
	done       chan struct{}
	timer      *time.Timer
	drainTimer *time.Timer
}

// PublishItem tracks one share to one provider.
type PublishItem struct {
	session  *PublishSession
	activity Activity
	provider Provider
	resolved bool
}

func newPublishSession(service *Service, activity Activity) *PublishSession {
	return &PublishSession{
		id:        service.idGenerator(),
		activity:  activity.Clone(),
		createdAt: service.clock(),
		service:   service,
		state:     SessionStatePending,
		inflight:  map[*PublishItem]struct{}{},
		done:      make(chan struct{}),
	}
}

func (s *PublishSession) ID() string {
	return s.id
}

func (s *PublishSession) Activity() Activity {
	return s.activity.Clone()
}

func (s *PublishSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counts returns the number of published and failed items so far.
func (s *PublishSession) Counts() (published int, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.failed
}

// Done is closed once the terminal notification has been queued.
func (s *PublishSession) Done() <-chan struct{} {
	return s.done
}

// BeginItem registers an in-flight share. A nil activity shares the session
// activity.
func (s *PublishSession) BeginItem(activity *Activity, provider Provider) (*PublishItem, error) {
	item, err := s.newItem(activity, provider)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStatePending {
		return nil, s.transitionError(context.Background(), "begin_item")
	}
	s.inflight[item] = struct{}{}
	return item, nil
}

// Published reports a share that needed no separate begin step.
func (s *PublishSession) Published(ctx context.Context, activity *Activity, provider Provider) error {
	item, err := s.BeginItem(activity, provider)
	if err != nil {
		return err
	}
	return item.Succeed(ctx)
}

func (s *PublishSession) PublishFailed(ctx context.Context, activity *Activity, err *EngageError, provider Provider) error {
	item, beginErr := s.BeginItem(activity, provider)
	if beginErr != nil {
		return beginErr
	}
	return item.Fail(ctx, err)
}

// Complete ends the session with PublishingCompleted, waiting for in-flight
// items first.
func (s *PublishSession) Complete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStatePending {
		return s.outcomeConflict(ctx, SessionStateCompleted)
	}
	if len(s.inflight) == 0 {
		return s.finishLocked(ctx, SessionStateCompleted)
	}
	s.state = SessionStateClosing
	s.stopTimerLocked()
	if drain := s.service.config.Publishing.ItemDrainTimeout; drain > 0 {
		s.drainTimer = time.AfterFunc(drain, s.abandonInflight)
	}
	s.service.logDebug(ctx, "publishing session closing", map[string]any{
		"session_id": s.id,
		"inflight":   len(s.inflight),
	})
	return nil
}

// Cancel ends a pending session with PublishingNotCompleted. A session that
// is already closing has committed to completion and cannot be canceled.
func (s *PublishSession) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStatePending {
		return s.outcomeConflict(ctx, SessionStateNotCompleted)
	}
	return s.finishLocked(ctx, SessionStateNotCompleted)
}

func (s *PublishSession) newItem(activity *Activity, provider Provider) (*PublishItem, error) {
	item := &PublishItem{session: s, activity: s.activity.Clone()}
	if activity != nil {
		if err := activity.Validate(); err != nil {
			return nil, s.service.mapError(badInputError(err.Error(), map[string]any{"session_id": s.id}))
		}
		item.activity = activity.Clone()
	}
	item.provider = trimProvider(provider)
	if item.provider == "" {
		return nil, s.service.mapError(badInputError("core: publish provider is required", map[string]any{"session_id": s.id}))
	}
	if !s.service.registry.SupportsSocialPublishing(item.provider) {
		return nil, s.service.mapError(badInputError("core: provider does not support social publishing", map[string]any{
			"session_id": s.id,
			"provider":   string(item.provider),
		}))
	}
	return item, nil
}

func (i *PublishItem) Provider() Provider {
	return i.provider
}

func (i *PublishItem) Activity() Activity {
	return i.activity.Clone()
}

func (i *PublishItem) Succeed(ctx context.Context) error {
	activity := i.activity.Clone()
	return i.session.resolveItem(ctx, i, Notification{
		Kind:     NotificationActivityPublished,
		Provider: i.provider,
		Activity: &activity,
	})
}

func (i *PublishItem) Fail(ctx context.Context, err *EngageError) error {
	if err == nil {
		return i.session.service.mapError(badInputError("core: publish failure error is required", map[string]any{"session_id": i.session.id}))
	}
	payload := err.WithProvider(i.provider)
	if payload.Kind == "" {
		payload.Kind = ErrorKindPublish
	}
	activity := i.activity.Clone()
	return i.session.resolveItem(ctx, i, Notification{
		Kind:     NotificationActivityPublishFailed,
		Provider: i.provider,
		Activity: &activity,
		Error:    payload,
	})
}

func (s *PublishSession) resolveItem(ctx context.Context, item *PublishItem, notification Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.resolved {
		fields := map[string]any{"session_id": s.id, "provider": string(item.provider)}
		s.service.logWarn(ctx, "publish item outcome rejected", fields)
		return s.service.mapError(conflictError(ErrOutcomeAlreadyDelivered,
			"core: publish item outcome already delivered", EngageErrorOutcomeAlreadyDelivered, fields))
	}
	if _, ok := s.inflight[item]; !ok {
		return s.transitionError(ctx, string(notification.Kind))
	}
	notification = s.service.stampNotification(notification, s.id)
	if _, err := s.service.dispatcher.enqueue(ctx, notification); err != nil {
		return s.service.mapError(err)
	}
	item.resolved = true
	delete(s.inflight, item)
	if notification.Kind == NotificationActivityPublished {
		s.published++
	} else {
		s.failed++
	}
	if s.state == SessionStateClosing && len(s.inflight) == 0 {
		return s.finishLocked(ctx, SessionStateCompleted)
	}
	return nil
}

// finishLocked queues the terminal notification. s.mu must be held.
func (s *PublishSession) finishLocked(ctx context.Context, target SessionState) error {
	kind := NotificationPublishingCompleted
	if target == SessionStateNotCompleted {
		kind = NotificationPublishingNotCompleted
	}
	notification := s.service.stampNotification(Notification{Kind: kind}, s.id)
	if _, err := s.service.dispatcher.enqueue(ctx, notification); err != nil {
		return s.service.mapError(err)
	}
	abandoned := len(s.inflight)
	s.state = target
	s.inflight = map[*PublishItem]struct{}{}
	close(s.done)
	s.stopTimerLocked()
	if s.drainTimer != nil {
		s.drainTimer.Stop()
		s.drainTimer = nil
	}
	if abandoned > 0 {
		s.service.logWarn(ctx, "publishing session ended with items in flight", map[string]any{
			"session_id": s.id,
			"abandoned":  abandoned,
			"state":      string(target),
		})
	}
	s.service.releaseSession(s.id)
	return nil
}

func (s *PublishSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *PublishSession) outcomeConflict(ctx context.Context, target SessionState) error {
	fields := map[string]any{
		"session_id": s.id,
		"state":      string(s.state),
		"rejected":   string(target),
	}
	s.service.logWarn(ctx, "publishing outcome rejected", fields)
	return s.service.mapError(conflictError(ErrOutcomeAlreadyDelivered,
		"core: publishing outcome already delivered", EngageErrorOutcomeAlreadyDelivered, fields))
}

// transitionError must be called with s.mu held.
func (s *PublishSession) transitionError(ctx context.Context, operation string) error {
	fields := map[string]any{
		"session_id": s.id,
		"state":      string(s.state),
		"operation":  operation,
	}
	s.service.logWarn(ctx, "publishing transition rejected", fields)
	return s.service.mapError(conflictError(ErrInvalidTransition,
		"core: invalid publishing transition", EngageErrorInvalidTransition, fields))
}

func (s *PublishSession) expire() {
	ctx := context.Background()
	if s.State() != SessionStatePending {
		return
	}
	if err := s.Cancel(ctx); err == nil {
		s.service.logInfo(ctx, "publishing timed out", map[string]any{"session_id": s.id})
	}
}

func (s *PublishSession) abandonInflight() {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateClosing {
		return
	}
	_ = s.finishLocked(ctx, SessionStateCompleted)
}

func (s *PublishSession) startTimer(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStatePending {
		return
	}
	s.timer = time.AfterFunc(timeout, s.expire)
}

// shutdown ends the session during Service.Close. Pending sessions are
// canceled; closing sessions complete without their remaining items.
func (s *PublishSession) shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionStatePending:
		_ = s.finishLocked(ctx, SessionStateNotCompleted)
	case SessionStateClosing:
		_ = s.finishLocked(ctx, SessionStateCompleted)
	}
}
