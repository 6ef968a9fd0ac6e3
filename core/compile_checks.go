package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ WorkflowService     = (*Service)(nil)
	_ Delegate            = DelegateFuncs{}
	_ Delegate            = NopDelegate{}
	_ NotificationJournal = (*MemoryJournal)(nil)
	_ OutcomeReader       = (*MemoryJournal)(nil)
	_ JournalPruner       = (*MemoryJournal)(nil)
	_ DeliveryHook        = DeliveryHookFunc{}
	_ DeliveryHook        = journalDeliveryHook{}
	_ MetricsRecorder     = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
