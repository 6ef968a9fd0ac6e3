package engage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-engage/command"
	"github.com/goliatone/go-engage/core"
	"github.com/goliatone/go-engage/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}
	journal := core.NewMemoryJournal()

	facade, err := NewFacade(svc, WithNotificationJournal(journal))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.RequestAuthentication == nil || commands.RequestPublishing == nil || commands.ShowDialog == nil {
		t.Fatalf("expected workflow command handlers to be wired")
	}
	if commands.CancelAuthentication == nil || commands.CancelPublishing == nil {
		t.Fatalf("expected cancel command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.ListNotifications == nil || queries.GetOutcome == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to keep the service")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{canceled: 2}
	journal := core.NewMemoryJournal()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := journal.Record(context.Background(), core.Notification{
		ID:         "n_1",
		Kind:       core.NotificationAuthenticationNotCompleted,
		ScopeID:    "att_1",
		Sequence:   1,
		OccurredAt: at,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	facade, err := NewFacade(svc, WithNotificationJournal(journal))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().ShowDialog.Execute(context.Background(), command.ShowDialogMessage{
		Request: core.DialogRequest{Kind: core.DialogAuthentication},
	}); err != nil {
		t.Fatalf("execute show dialog command: %v", err)
	}
	if svc.lastDialog != core.DialogAuthentication {
		t.Fatalf("unexpected show dialog delegation payload %q", svc.lastDialog)
	}
	if err := facade.Commands().CancelAuthentication.Execute(context.Background(), command.CancelAuthenticationMessage{}); err != nil {
		t.Fatalf("execute cancel command: %v", err)
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("expected cancel delegation, got %d calls", svc.cancelCalls)
	}

	page, err := facade.Queries().ListNotifications.Query(context.Background(), query.ListNotificationsMessage{
		Filter: core.NotificationFilter{ScopeID: "att_1"},
	})
	if err != nil {
		t.Fatalf("query list notifications: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "n_1" {
		t.Fatalf("unexpected notification page result: %#v", page)
	}

	outcome, err := facade.Queries().GetOutcome.Query(context.Background(), query.GetOutcomeMessage{ScopeID: "att_1"})
	if err != nil {
		t.Fatalf("query outcome: %v", err)
	}
	if outcome.Kind != core.NotificationAuthenticationNotCompleted {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
}

func TestNewFacade_ResolvesServiceJournal(t *testing.T) {
	var counter atomic.Int64
	svc, err := NewService(Config{}, WithIDGenerator(func() string {
		return fmt.Sprintf("id_%d", counter.Add(1))
	}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer func() { _ = svc.Close(context.Background()) }()

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	ctx := context.Background()
	if err := facade.Commands().RequestAuthentication.Execute(ctx, command.RequestAuthenticationMessage{
		Request: core.AuthenticationRequest{Provider: core.ProviderGoogle},
	}); err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	if err := facade.Commands().CancelAuthentication.Execute(ctx, command.CancelAuthenticationMessage{}); err != nil {
		t.Fatalf("cancel authentication: %v", err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.Flush(flushCtx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	outcome, err := facade.Queries().GetOutcome.Query(ctx, query.GetOutcomeMessage{ScopeID: "id_1"})
	if err != nil {
		t.Fatalf("query outcome: %v", err)
	}
	if outcome.Kind != core.NotificationAuthenticationNotCompleted {
		t.Fatalf("expected canceled attempt outcome, got %#v", outcome)
	}
}

func TestNewFacade_OutcomeReaderOverride(t *testing.T) {
	reader := stubOutcomeReader{err: core.ErrNotificationNotFound}
	facade, err := NewFacade(&stubFacadeService{}, WithOutcomeReader(reader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	_, err = facade.Queries().GetOutcome.Query(context.Background(), query.GetOutcomeMessage{ScopeID: "ses_1"})
	if !errors.Is(err, core.ErrNotificationNotFound) {
		t.Fatalf("expected override reader error, got %v", err)
	}
	if _, err := facade.Queries().ListNotifications.Query(context.Background(), query.ListNotificationsMessage{}); err == nil {
		t.Fatalf("expected missing journal to fail the list query")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
	var nilFacade *Facade
	if nilFacade.Service() != nil || nilFacade.Commands().ShowDialog != nil {
		t.Fatalf("expected nil facade accessors to be empty")
	}
}

type stubFacadeService struct {
	lastDialog  core.DialogKind
	cancelCalls int
	canceled    int
}

func (s *stubFacadeService) RequestAuthentication(context.Context, core.AuthenticationRequest) (*core.AuthAttempt, error) {
	return nil, nil
}

func (s *stubFacadeService) RequestPublishing(context.Context, core.PublishingRequest) (*core.PublishSession, error) {
	return nil, nil
}

func (s *stubFacadeService) ShowDialog(_ context.Context, req core.DialogRequest) error {
	s.lastDialog = req.Kind
	return nil
}

func (s *stubFacadeService) CancelAuthentication(context.Context) (int, error) {
	s.cancelCalls++
	return s.canceled, nil
}

func (s *stubFacadeService) CancelPublishing(context.Context) (int, error) {
	s.cancelCalls++
	return s.canceled, nil
}

type stubOutcomeReader struct {
	err error
}

func (r stubOutcomeReader) GetOutcome(context.Context, string) (core.Notification, error) {
	return core.Notification{}, r.err
}

var _ command.WorkflowService = (*stubFacadeService)(nil)
