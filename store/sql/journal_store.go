package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-engage/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// JournalStore persists delivered notifications in engage_notifications.
// A partial unique index keeps at most one terminal row per scope id.
type JournalStore struct {
	db   *bun.DB
	repo repository.Repository[*notificationRecord]
	now  func() time.Time
}

func NewJournalStore(db *bun.DB) (*JournalStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationRecord](db, notificationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid notification repository wiring: %w", err)
		}
	}
	return &JournalStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *JournalStore) Record(ctx context.Context, notification core.Notification) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: journal store is not configured")
	}
	if !notification.Kind.Valid() {
		return fmt.Errorf("sqlstore: unsupported notification kind %q", notification.Kind)
	}
	if strings.TrimSpace(notification.ScopeID) == "" {
		return fmt.Errorf("sqlstore: notification scope id is required")
	}
	if notification.OccurredAt.IsZero() {
		notification.OccurredAt = s.now()
	}
	record, err := notificationToRecord(notification)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *JournalStore) List(ctx context.Context, filter core.NotificationFilter) (core.NotificationPage, error) {
	if s == nil || s.repo == nil {
		return core.NotificationPage{}, fmt.Errorf("sqlstore: journal store is not configured")
	}
	filter = core.NormalizeNotificationFilter(filter)
	if err := filter.Validate(); err != nil {
		return core.NotificationPage{}, err
	}
	offset := (filter.Page - 1) * filter.PerPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("sequence_no ASC"),
		repository.SelectPaginate(filter.PerPage, offset),
	}
	if filter.ScopeID != "" {
		selectors = append(selectors, repository.SelectBy("scope_id", "=", filter.ScopeID))
	}
	if filter.Provider != "" {
		provider := string(filter.Provider)
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.provider) = ?", provider)
		}))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, kind := range filter.Kinds {
			kinds = append(kinds, string(kind))
		}
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.kind IN (?)", bun.In(kinds))
		}))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.NotificationPage{}, err
	}
	items := make([]core.Notification, 0, len(records))
	for _, record := range records {
		item, err := record.toDomain()
		if err != nil {
			return core.NotificationPage{}, err
		}
		items = append(items, item)
	}
	return core.NotificationPage{
		Items:   items,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// GetOutcome returns the terminal notification recorded for an attempt or
// session.
func (s *JournalStore) GetOutcome(ctx context.Context, scopeID string) (core.Notification, error) {
	if s == nil || s.repo == nil {
		return core.Notification{}, fmt.Errorf("sqlstore: journal store is not configured")
	}
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return core.Notification{}, fmt.Errorf("sqlstore: scope id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("scope_id", "=", scopeID),
		repository.SelectBy("terminal", "=", true),
		repository.OrderBy("sequence_no ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Notification{}, err
	}
	if len(records) == 0 {
		return core.Notification{}, fmt.Errorf("%w: outcome for %s", core.ErrNotificationNotFound, scopeID)
	}
	return records[0].toDomain()
}

// Prune drops rows older than policy.TTL, then the lowest sequences above
// policy.RowCap.
func (s *JournalStore) Prune(ctx context.Context, policy core.JournalRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: journal store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*notificationRecord)(nil)).
			Where("occurred_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*notificationRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM engage_notifications WHERE id IN (SELECT id FROM engage_notifications ORDER BY sequence_no ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}
