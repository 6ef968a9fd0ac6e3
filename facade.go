package engage

import (
	"fmt"

	"github.com/goliatone/go-engage/command"
	"github.com/goliatone/go-engage/core"
	"github.com/goliatone/go-engage/query"
)

type Commands struct {
	RequestAuthentication *command.RequestAuthenticationCommand
	RequestPublishing     *command.RequestPublishingCommand
	ShowDialog            *command.ShowDialogCommand
	CancelAuthentication  *command.CancelAuthenticationCommand
	CancelPublishing      *command.CancelPublishingCommand
}

type Queries struct {
	ListNotifications *query.ListNotificationsQuery
	GetOutcome        *query.GetOutcomeQuery
}

type Facade struct {
	service  command.WorkflowService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	journal  query.NotificationLister
	outcomes core.OutcomeReader
}

// WithNotificationJournal sets the journal used by the list query. Without it
// the facade reads from the service journal.
func WithNotificationJournal(journal query.NotificationLister) FacadeOption {
	return func(options *facadeOptions) {
		options.journal = journal
	}
}

// WithOutcomeReader sets the reader used by the outcome query, typically a
// cached SQL reader.
func WithOutcomeReader(reader core.OutcomeReader) FacadeOption {
	return func(options *facadeOptions) {
		options.outcomes = reader
	}
}

func NewFacade(service command.WorkflowService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("engage: workflow service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	journal := resolveServiceJournal(service)
	if cfg.journal == nil && journal != nil {
		cfg.journal = journal
	}
	if cfg.outcomes == nil {
		if reader, ok := cfg.journal.(core.OutcomeReader); ok {
			cfg.outcomes = reader
		} else if reader, ok := journal.(core.OutcomeReader); ok {
			cfg.outcomes = reader
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RequestAuthentication: command.NewRequestAuthenticationCommand(service),
		RequestPublishing:     command.NewRequestPublishingCommand(service),
		ShowDialog:            command.NewShowDialogCommand(service),
		CancelAuthentication:  command.NewCancelAuthenticationCommand(service),
		CancelPublishing:      command.NewCancelPublishingCommand(service),
	}
	facade.queries = Queries{
		ListNotifications: query.NewListNotificationsQuery(cfg.journal),
		GetOutcome:        query.NewGetOutcomeQuery(cfg.outcomes),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() command.WorkflowService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveServiceJournal(service command.WorkflowService) core.NotificationJournal {
	provider, ok := service.(interface {
		Journal() core.NotificationJournal
	})
	if !ok {
		return nil
	}
	return provider.Journal()
}
