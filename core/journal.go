package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultJournalPerPage = 50
	maxJournalPerPage     = 500
)

// MemoryJournal keeps delivered notifications in process, ordered by
// sequence.
type MemoryJournal struct {
	mu    sync.RWMutex
	items []Notification
	now   func() time.Time
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		items: make([]Notification, 0),
		now:   defaultClock,
	}
}

func (j *MemoryJournal) Record(_ context.Context, notification Notification) error {
	if j == nil {
		return fmt.Errorf("core: journal is nil")
	}
	if !notification.Kind.Valid() {
		return fmt.Errorf("core: unsupported notification kind %q", notification.Kind)
	}
	if strings.TrimSpace(notification.ScopeID) == "" {
		return fmt.Errorf("core: notification scope id is required")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	record := notification.clone()
	index := sort.Search(len(j.items), func(i int) bool {
		return j.items[i].Sequence > record.Sequence
	})
	j.items = append(j.items, Notification{})
	copy(j.items[index+1:], j.items[index:])
	j.items[index] = record
	return nil
}

func (j *MemoryJournal) List(_ context.Context, filter NotificationFilter) (NotificationPage, error) {
	if j == nil {
		return NotificationPage{}, fmt.Errorf("core: journal is nil")
	}
	filter = NormalizeNotificationFilter(filter)
	j.mu.RLock()
	matched := make([]Notification, 0)
	for _, item := range j.items {
		if filter.Matches(item) {
			matched = append(matched, item.clone())
		}
	}
	j.mu.RUnlock()
	return paginateNotifications(matched, filter), nil
}

// GetOutcome returns the terminal notification recorded for an attempt or
// session.
func (j *MemoryJournal) GetOutcome(_ context.Context, scopeID string) (Notification, error) {
	if j == nil {
		return Notification{}, fmt.Errorf("core: journal is nil")
	}
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return Notification{}, fmt.Errorf("core: scope id is required")
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, item := range j.items {
		if item.ScopeID == scopeID && item.Kind.Terminal() {
			return item.clone(), nil
		}
	}
	return Notification{}, fmt.Errorf("%w: outcome for %s", ErrNotificationNotFound, scopeID)
}

// Prune drops entries older than policy.TTL, then the oldest entries above
// policy.RowCap.
func (j *MemoryJournal) Prune(_ context.Context, policy JournalRetentionPolicy) (int, error) {
	if j == nil {
		return 0, fmt.Errorf("core: journal is nil")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	before := len(j.items)
	if policy.TTL > 0 {
		cutoff := j.now().Add(-policy.TTL)
		kept := j.items[:0]
		for _, item := range j.items {
			if item.OccurredAt.Before(cutoff) {
				continue
			}
			kept = append(kept, item)
		}
		j.items = kept
	}
	if policy.RowCap > 0 && len(j.items) > policy.RowCap {
		overflow := len(j.items) - policy.RowCap
		j.items = append([]Notification(nil), j.items[overflow:]...)
	}
	return before - len(j.items), nil
}

func (j *MemoryJournal) Len() int {
	if j == nil {
		return 0
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.items)
}

func NormalizeNotificationFilter(filter NotificationFilter) NotificationFilter {
	filter.ScopeID = strings.TrimSpace(filter.ScopeID)
	filter.Provider = NormalizeProvider(string(filter.Provider))
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultJournalPerPage
	}
	if filter.PerPage > maxJournalPerPage {
		filter.PerPage = maxJournalPerPage
	}
	return filter
}

func (f NotificationFilter) Validate() error {
	for _, kind := range f.Kinds {
		if !kind.Valid() {
			return fmt.Errorf("core: unsupported notification kind %q", kind)
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("core: notification filter from must be before to")
	}
	return nil
}

func (f NotificationFilter) Matches(notification Notification) bool {
	if f.ScopeID != "" && notification.ScopeID != f.ScopeID {
		return false
	}
	if f.Provider != "" && !SameProvider(notification.Provider, f.Provider) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, kind := range f.Kinds {
			if kind == notification.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && notification.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && notification.OccurredAt.After(*f.To) {
		return false
	}
	return true
}

func paginateNotifications(items []Notification, filter NotificationFilter) NotificationPage {
	total := len(items)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return NotificationPage{
		Items:   items[start:end],
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		HasNext: end < total,
	}
}
