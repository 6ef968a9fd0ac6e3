package sqlstore

import "github.com/goliatone/go-engage/core"

var (
	_ core.NotificationJournal = (*JournalStore)(nil)
	_ core.OutcomeReader       = (*JournalStore)(nil)
	_ core.JournalPruner       = (*JournalStore)(nil)
	_ core.OutcomeReader       = (*CachedOutcomeReader)(nil)
)
