package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-engage/core"
)

type NotificationLister interface {
	List(ctx context.Context, filter core.NotificationFilter) (core.NotificationPage, error)
}

type ListNotificationsQuery struct {
	reader NotificationLister
}

func NewListNotificationsQuery(reader NotificationLister) *ListNotificationsQuery {
	return &ListNotificationsQuery{reader: reader}
}

func (q *ListNotificationsQuery) Query(
	ctx context.Context,
	msg ListNotificationsMessage,
) (core.NotificationPage, error) {
	if q == nil || q.reader == nil {
		return core.NotificationPage{}, queryDependencyError("query: notification journal is required")
	}
	if err := msg.Validate(); err != nil {
		return core.NotificationPage{}, err
	}
	return q.reader.List(ctx, core.NormalizeNotificationFilter(msg.Filter))
}

type GetOutcomeQuery struct {
	reader core.OutcomeReader
}

func NewGetOutcomeQuery(reader core.OutcomeReader) *GetOutcomeQuery {
	return &GetOutcomeQuery{reader: reader}
}

func (q *GetOutcomeQuery) Query(ctx context.Context, msg GetOutcomeMessage) (core.Notification, error) {
	if q == nil || q.reader == nil {
		return core.Notification{}, queryDependencyError("query: outcome reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Notification{}, err
	}
	return q.reader.GetOutcome(ctx, strings.TrimSpace(msg.ScopeID))
}
