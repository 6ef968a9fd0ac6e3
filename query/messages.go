package query

import (
	"strings"

	"github.com/goliatone/go-engage/core"
)

const (
	TypeListNotifications = "engage.query.notifications.list"
	TypeGetOutcome        = "engage.query.outcome.get"
)

type ListNotificationsMessage struct {
	Filter core.NotificationFilter
}

func (ListNotificationsMessage) Type() string { return TypeListNotifications }

func (m ListNotificationsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return queryWrapValidation(m.Filter.Validate(), "query: invalid notification filter")
}

// GetOutcomeMessage looks up the terminal notification of an attempt or
// publishing session.
type GetOutcomeMessage struct {
	ScopeID string
}

func (GetOutcomeMessage) Type() string { return TypeGetOutcome }

func (m GetOutcomeMessage) Validate() error {
	if strings.TrimSpace(m.ScopeID) == "" {
		return queryValidationError("scope_id", "scope id is required")
	}
	return nil
}
