package core

import (
	"context"
	"fmt"
	"sync"
)

type observerEntry struct {
	id             uint64
	configuration  ConfigurationObserver
	authentication AuthenticationObserver
	publishing     PublishingObserver
}

func (e observerEntry) accepts(scope Scope) bool {
	switch scope {
	case ScopeConfiguration:
		return e.configuration != nil
	case ScopeAuthentication:
		return e.authentication != nil
	case ScopePublishing:
		return e.publishing != nil
	default:
		return false
	}
}

// observerRegistry keeps observers in registration order. Delivery works on
// a snapshot, so an observer removed mid-delivery may still see the
// notification in flight.
type observerRegistry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []observerEntry
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{entries: make([]observerEntry, 0)}
}

func (r *observerRegistry) add(observer any) (Registration, error) {
	if observer == nil {
		return Registration{}, fmt.Errorf("core: observer is required")
	}
	entry := observerEntry{}
	entry.configuration, _ = observer.(ConfigurationObserver)
	entry.authentication, _ = observer.(AuthenticationObserver)
	entry.publishing, _ = observer.(PublishingObserver)
	if entry.configuration == nil && entry.authentication == nil && entry.publishing == nil {
		return Registration{}, fmt.Errorf("core: observer %T must implement at least one observer interface", observer)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.id = r.nextID
	r.entries = append(r.entries, entry)
	return Registration{id: entry.id, registry: r}, nil
}

func (r *observerRegistry) remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.entries {
		if entry.id != id {
			continue
		}
		r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
		return true
	}
	return false
}

func (r *observerRegistry) snapshot(scope Scope) []observerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]observerEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.accepts(scope) {
			out = append(out, entry)
		}
	}
	return out
}

func (r *observerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Registration is the handle returned by Service.AddObserver.
type Registration struct {
	id       uint64
	registry *observerRegistry
}

func (r Registration) ID() uint64 {
	return r.id
}

// Remove unregisters the observer. It reports false when the observer was
// already removed.
func (r Registration) Remove() bool {
	if r.registry == nil {
		return false
	}
	return r.registry.remove(r.id)
}

// notify hands one notification to one observer. Every payload is copied so
// observers cannot affect each other.
func (e observerEntry) notify(ctx context.Context, notification Notification) {
	switch notification.Kind {
	case NotificationDialogFailedToShow:
		e.configuration.DialogFailedToShow(ctx, notification.Error.clone())
	case NotificationAuthenticationNotCompleted:
		e.authentication.AuthenticationNotCompleted(ctx)
	case NotificationAuthenticationSucceeded:
		e.authentication.AuthenticationSucceeded(ctx, authInfoValue(notification.AuthInfo), notification.Provider)
	case NotificationAuthenticationFailed:
		e.authentication.AuthenticationFailed(ctx, notification.Error.clone(), notification.Provider)
	case NotificationTokenURLReached:
		e.authentication.TokenURLReached(ctx, tokenResultValue(notification.TokenURL), notification.Provider)
	case NotificationTokenURLCallFailed:
		e.authentication.TokenURLCallFailed(ctx, tokenResultValue(notification.TokenURL).URL, notification.Error.clone(), notification.Provider)
	case NotificationPublishingNotCompleted:
		e.publishing.PublishingNotCompleted(ctx)
	case NotificationPublishingCompleted:
		e.publishing.PublishingCompleted(ctx)
	case NotificationActivityPublished:
		e.publishing.ActivityPublished(ctx, activityValue(notification.Activity), notification.Provider)
	case NotificationActivityPublishFailed:
		e.publishing.ActivityPublishFailed(ctx, activityValue(notification.Activity), notification.Error.clone(), notification.Provider)
	}
}

func authInfoValue(info *AuthInfo) AuthInfo {
	if info == nil {
		return AuthInfo{}
	}
	return info.Clone()
}

func tokenResultValue(result *TokenURLResult) TokenURLResult {
	if result == nil {
		return TokenURLResult{}
	}
	return result.clone()
}

func activityValue(activity *Activity) Activity {
	if activity == nil {
		return Activity{}
	}
	return activity.Clone()
}

// DelegateFuncs implements Delegate with optional callbacks. Nil fields are
// ignored.
type DelegateFuncs struct {
	OnDialogFailedToShow         func(ctx context.Context, err *EngageError)
	OnAuthenticationNotCompleted func(ctx context.Context)
	OnAuthenticationSucceeded    func(ctx context.Context, info AuthInfo, provider Provider)
	OnAuthenticationFailed       func(ctx context.Context, err *EngageError, provider Provider)
	OnTokenURLReached            func(ctx context.Context, result TokenURLResult, provider Provider)
	OnTokenURLCallFailed         func(ctx context.Context, tokenURL string, err *EngageError, provider Provider)
	OnPublishingNotCompleted     func(ctx context.Context)
	OnPublishingCompleted        func(ctx context.Context)
	OnActivityPublished          func(ctx context.Context, activity Activity, provider Provider)
	OnActivityPublishFailed      func(ctx context.Context, activity Activity, err *EngageError, provider Provider)
}

func (d DelegateFuncs) DialogFailedToShow(ctx context.Context, err *EngageError) {
	if d.OnDialogFailedToShow != nil {
		d.OnDialogFailedToShow(ctx, err)
	}
}

func (d DelegateFuncs) AuthenticationNotCompleted(ctx context.Context) {
	if d.OnAuthenticationNotCompleted != nil {
		d.OnAuthenticationNotCompleted(ctx)
	}
}

func (d DelegateFuncs) AuthenticationSucceeded(ctx context.Context, info AuthInfo, provider Provider) {
	if d.OnAuthenticationSucceeded != nil {
		d.OnAuthenticationSucceeded(ctx, info, provider)
	}
}

func (d DelegateFuncs) AuthenticationFailed(ctx context.Context, err *EngageError, provider Provider) {
	if d.OnAuthenticationFailed != nil {
		d.OnAuthenticationFailed(ctx, err, provider)
	}
}

func (d DelegateFuncs) TokenURLReached(ctx context.Context, result TokenURLResult, provider Provider) {
	if d.OnTokenURLReached != nil {
		d.OnTokenURLReached(ctx, result, provider)
	}
}

func (d DelegateFuncs) TokenURLCallFailed(ctx context.Context, tokenURL string, err *EngageError, provider Provider) {
	if d.OnTokenURLCallFailed != nil {
		d.OnTokenURLCallFailed(ctx, tokenURL, err, provider)
	}
}

func (d DelegateFuncs) PublishingNotCompleted(ctx context.Context) {
	if d.OnPublishingNotCompleted != nil {
		d.OnPublishingNotCompleted(ctx)
	}
}

func (d DelegateFuncs) PublishingCompleted(ctx context.Context) {
	if d.OnPublishingCompleted != nil {
		d.OnPublishingCompleted(ctx)
	}
}

func (d DelegateFuncs) ActivityPublished(ctx context.Context, activity Activity, provider Provider) {
	if d.OnActivityPublished != nil {
		d.OnActivityPublished(ctx, activity, provider)
	}
}

func (d DelegateFuncs) ActivityPublishFailed(ctx context.Context, activity Activity, err *EngageError, provider Provider) {
	if d.OnActivityPublishFailed != nil {
		d.OnActivityPublishFailed(ctx, activity, err, provider)
	}
}

// NopDelegate can be embedded to implement only some callbacks.
type NopDelegate struct{}

func (NopDelegate) DialogFailedToShow(context.Context, *EngageError)                        {}
func (NopDelegate) AuthenticationNotCompleted(context.Context)                              {}
func (NopDelegate) AuthenticationSucceeded(context.Context, AuthInfo, Provider)             {}
func (NopDelegate) AuthenticationFailed(context.Context, *EngageError, Provider)            {}
func (NopDelegate) TokenURLReached(context.Context, TokenURLResult, Provider)               {}
func (NopDelegate) TokenURLCallFailed(context.Context, string, *EngageError, Provider)      {}
func (NopDelegate) PublishingNotCompleted(context.Context)                                  {}
func (NopDelegate) PublishingCompleted(context.Context)                                     {}
func (NopDelegate) ActivityPublished(context.Context, Activity, Provider)                   {}
func (NopDelegate) ActivityPublishFailed(context.Context, Activity, *EngageError, Provider) {}
