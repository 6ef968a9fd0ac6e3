package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-engage/core"
)

var (
	_ gocmd.Querier[ListNotificationsMessage, core.NotificationPage] = (*ListNotificationsQuery)(nil)
	_ gocmd.Querier[GetOutcomeMessage, core.Notification]            = (*GetOutcomeQuery)(nil)

	_ NotificationLister = (*core.MemoryJournal)(nil)
	_ core.OutcomeReader = (*core.MemoryJournal)(nil)
)
