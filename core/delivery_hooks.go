package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DeliveryHookCoordinator runs hooks around observer delivery. Before hooks
// see a notification ahead of any observer; after hooks see it once every
// observer returned. Hook failures are aggregated and never stop delivery.
type DeliveryHookCoordinator struct {
	mu     sync.RWMutex
	before []DeliveryHook
	after  []DeliveryHook
}

func NewDeliveryHookCoordinator() *DeliveryHookCoordinator {
	return &DeliveryHookCoordinator{
		before: make([]DeliveryHook, 0),
		after:  make([]DeliveryHook, 0),
	}
}

func (c *DeliveryHookCoordinator) RegisterBeforeDelivery(hook DeliveryHook) {
	if c == nil || hook == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.before = append(c.before, hook)
}

func (c *DeliveryHookCoordinator) RegisterAfterDelivery(hook DeliveryHook) {
	if c == nil || hook == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.after = append(c.after, hook)
}

func (c *DeliveryHookCoordinator) ExecuteBeforeDelivery(ctx context.Context, notification Notification) error {
	return runDeliveryHooks(ctx, "before-delivery", c.beforeHooks(), notification)
}

func (c *DeliveryHookCoordinator) ExecuteAfterDelivery(ctx context.Context, notification Notification) error {
	return runDeliveryHooks(ctx, "after-delivery", c.afterHooks(), notification)
}

func runDeliveryHooks(ctx context.Context, phase string, hooks []DeliveryHook, notification Notification) error {
	var hookErr error
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := callDeliveryHook(ctx, hook, notification.clone()); err != nil {
			hookErr = errors.Join(hookErr, fmt.Errorf("%s hook %q failed: %w", phase, hookName(hook), err))
		}
	}
	return hookErr
}

func callDeliveryHook(ctx context.Context, hook DeliveryHook, notification Notification) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("hook panicked: %v", recovered)
		}
	}()
	return hook.OnNotification(ctx, notification)
}

func (c *DeliveryHookCoordinator) beforeHooks() []DeliveryHook {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DeliveryHook, len(c.before))
	copy(out, c.before)
	return out
}

func (c *DeliveryHookCoordinator) afterHooks() []DeliveryHook {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DeliveryHook, len(c.after))
	copy(out, c.after)
	return out
}

func hookName(hook DeliveryHook) string {
	if hook == nil {
		return "unknown"
	}
	name := strings.TrimSpace(hook.Name())
	if name == "" {
		return "unnamed"
	}
	return name
}

// DeliveryHookFunc adapts a function to DeliveryHook.
type DeliveryHookFunc struct {
	HookName string
	Fn       func(ctx context.Context, notification Notification) error
}

func (h DeliveryHookFunc) Name() string {
	return h.HookName
}

func (h DeliveryHookFunc) OnNotification(ctx context.Context, notification Notification) error {
	if h.Fn == nil {
		return nil
	}
	return h.Fn(ctx, notification)
}

type journalDeliveryHook struct {
	journal NotificationJournal
}

// JournalDeliveryHook records every delivered notification.
func JournalDeliveryHook(journal NotificationJournal) DeliveryHook {
	return journalDeliveryHook{journal: journal}
}

func (journalDeliveryHook) Name() string {
	return "journal"
}

func (h journalDeliveryHook) OnNotification(ctx context.Context, notification Notification) error {
	if h.journal == nil {
		return nil
	}
	return h.journal.Record(ctx, notification)
}
