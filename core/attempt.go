package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

// AuthAttempt is the driver side of one authentication request. It accepts
// exactly one terminal outcome; the first call wins and later terminal calls
// return an ENGAGE_OUTCOME_ALREADY_DELIVERED conflict without notifying
// anyone.
type AuthAttempt struct {
	id        string
	requested Provider
	tokenURL  string
	createdAt time.Time
	service   *Service

	mu       sync.Mutex
	state    AttemptState
	token    TokenState
	provider Provider
	done     chan struct{}
	timer    *time.Timer
}

func newAuthAttempt(service *Service, requested Provider, tokenURL string) *AuthAttempt {
	return &AuthAttempt{
		id:        service.idGenerator(),
		requested: requested,
		tokenURL:  tokenURL,
		createdAt: service.clock(),
		service:   service,
		state:     AttemptStatePending,
		done:      make(chan struct{}),
	}
}

func (a *AuthAttempt) ID() string {
	return a.id
}

// Provider is the provider that authenticated the user, or the requested
// provider while the attempt is pending.
func (a *AuthAttempt) Provider() Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider != "" {
		return a.provider
	}
	return a.requested
}

func (a *AuthAttempt) TokenURL() string {
	return a.tokenURL
}

func (a *AuthAttempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AuthAttempt) TokenState() TokenState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// Done is closed once the terminal outcome has been accepted.
func (a *AuthAttempt) Done() <-chan struct{} {
	return a.done
}

func (a *AuthAttempt) Succeed(ctx context.Context, info AuthInfo, provider Provider) error {
	if err := info.Validate(); err != nil {
		return a.service.mapError(badInputError(err.Error(), map[string]any{"attempt_id": a.id}))
	}
	info = info.Clone()
	return a.finish(ctx, AttemptStateSucceeded, Notification{
		Kind:     NotificationAuthenticationSucceeded,
		Provider: a.resolveProvider(provider),
		AuthInfo: &info,
	})
}

func (a *AuthAttempt) Fail(ctx context.Context, err *EngageError, provider Provider) error {
	if err == nil {
		return a.service.mapError(badInputError("core: authentication failure error is required", map[string]any{"attempt_id": a.id}))
	}
	resolved := a.resolveProvider(provider)
	payload := err.WithProvider(resolved)
	if payload.Kind == "" {
		payload.Kind = ErrorKindAuthentication
	}
	return a.finish(ctx, AttemptStateFailed, Notification{
		Kind:     NotificationAuthenticationFailed,
		Provider: resolved,
		Error:    payload,
	})
}

// Cancel ends a pending attempt with AuthenticationNotCompleted.
func (a *AuthAttempt) Cancel(ctx context.Context) error {
	return a.finish(ctx, AttemptStateNotCompleted, Notification{
		Kind: NotificationAuthenticationNotCompleted,
	})
}

// BeginTokenExchange marks the token URL call as started. It is optional:
// ReachTokenURL and FailTokenURL accept a succeeded attempt directly.
func (a *AuthAttempt) BeginTokenExchange(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptStateSucceeded || a.token != TokenStateNone || a.tokenURL == "" {
		return a.transitionError(ctx, "begin_token_exchange")
	}
	a.token = TokenStatePending
	return nil
}

func (a *AuthAttempt) ReachTokenURL(ctx context.Context, result TokenURLResult, provider Provider) error {
	if strings.TrimSpace(result.URL) == "" {
		result.URL = a.tokenURL
	}
	result = result.clone()
	return a.finishToken(ctx, TokenStateReached, Notification{
		Kind:     NotificationTokenURLReached,
		Provider: provider,
		TokenURL: &result,
	})
}

func (a *AuthAttempt) FailTokenURL(ctx context.Context, tokenURL string, err *EngageError, provider Provider) error {
	if err == nil {
		return a.service.mapError(badInputError("core: token url failure error is required", map[string]any{"attempt_id": a.id}))
	}
	if strings.TrimSpace(tokenURL) == "" {
		tokenURL = a.tokenURL
	}
	payload := err.clone()
	if payload.Kind == "" {
		payload.Kind = ErrorKindTokenExchange
	}
	return a.finishToken(ctx, TokenStateCallFailed, Notification{
		Kind:     NotificationTokenURLCallFailed,
		Provider: provider,
		TokenURL: &TokenURLResult{URL: tokenURL},
		Error:    payload,
	})
}

func (a *AuthAttempt) finish(ctx context.Context, target AttemptState, notification Notification) error {
	a.mu.Lock()
	if a.state != AttemptStatePending {
		current := a.state
		a.mu.Unlock()
		fields := map[string]any{
			"attempt_id": a.id,
			"state":      string(current),
			"rejected":   string(target),
		}
		a.service.logWarn(ctx, "authentication outcome rejected", fields)
		return a.service.mapError(conflictError(ErrOutcomeAlreadyDelivered,
			"core: authentication outcome already delivered", EngageErrorOutcomeAlreadyDelivered, fields))
	}
	notification = a.service.stampNotification(notification, a.id)
	if _, err := a.service.dispatcher.enqueue(ctx, notification); err != nil {
		a.mu.Unlock()
		return a.service.mapError(err)
	}
	a.state = target
	if target == AttemptStateSucceeded {
		a.provider = notification.Provider
	}
	close(a.done)
	timer := a.timer
	a.timer = nil
	a.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	a.service.releaseAttempt(a.id)
	return nil
}

func (a *AuthAttempt) finishToken(ctx context.Context, target TokenState, notification Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Token notifications only follow an attempt configured with a token URL.
	if a.state != AttemptStateSucceeded || a.tokenURL == "" {
		return a.transitionError(ctx, string(notification.Kind))
	}
	if a.token != TokenStateNone && a.token != TokenStatePending {
		fields := map[string]any{
			"attempt_id":  a.id,
			"token_state": string(a.token),
			"rejected":    string(target),
		}
		a.service.logWarn(ctx, "token url outcome rejected", fields)
		return a.service.mapError(conflictError(ErrOutcomeAlreadyDelivered,
			"core: token url outcome already delivered", EngageErrorOutcomeAlreadyDelivered, fields))
	}
	if notification.Provider == "" {
		notification.Provider = a.provider
	} else {
		notification.Provider = trimProvider(notification.Provider)
	}
	if notification.Error != nil {
		notification.Error = notification.Error.WithProvider(notification.Provider)
	}
	notification = a.service.stampNotification(notification, a.id)
	if _, err := a.service.dispatcher.enqueue(ctx, notification); err != nil {
		return a.service.mapError(err)
	}
	a.token = target
	return nil
}

// transitionError must be called with a.mu held.
func (a *AuthAttempt) transitionError(ctx context.Context, operation string) error {
	fields := map[string]any{
		"attempt_id":  a.id,
		"state":       string(a.state),
		"token_state": string(a.token),
		"operation":   operation,
	}
	a.service.logWarn(ctx, "authentication transition rejected", fields)
	return a.service.mapError(conflictError(ErrInvalidTransition,
		"core: invalid authentication transition", EngageErrorInvalidTransition, fields))
}

func (a *AuthAttempt) resolveProvider(provider Provider) Provider {
	provider = trimProvider(provider)
	if provider == "" {
		provider = a.requested
	}
	if provider == "" {
		provider = ProviderOther
	}
	return provider
}

// expire cancels the attempt when its timeout fires. Losing to a concurrent
// outcome is expected and not reported.
func (a *AuthAttempt) expire() {
	ctx := context.Background()
	if a.State() != AttemptStatePending {
		return
	}
	if err := a.Cancel(ctx); err == nil {
		a.service.logInfo(ctx, "authentication timed out", map[string]any{"attempt_id": a.id})
	}
}

func (a *AuthAttempt) startTimer(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptStatePending {
		return
	}
	a.timer = time.AfterFunc(timeout, a.expire)
}
