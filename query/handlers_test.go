package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-engage/core"
)

type stubNotificationLister struct {
	listFn func(context.Context, core.NotificationFilter) (core.NotificationPage, error)
}

func (s stubNotificationLister) List(ctx context.Context, filter core.NotificationFilter) (core.NotificationPage, error) {
	if s.listFn == nil {
		return core.NotificationPage{}, fmt.Errorf("unexpected list call")
	}
	return s.listFn(ctx, filter)
}

func TestListNotificationsQuery_NormalizesFilterAndDelegates(t *testing.T) {
	called := false
	reader := stubNotificationLister{
		listFn: func(_ context.Context, filter core.NotificationFilter) (core.NotificationPage, error) {
			called = true
			if filter.Provider != core.ProviderTwitter || filter.Page != 1 || filter.PerPage != 50 {
				t.Fatalf("expected normalized filter, got %#v", filter)
			}
			return core.NotificationPage{Items: []core.Notification{{ID: "n_1"}}, Page: 1, PerPage: 50, Total: 1}, nil
		},
	}

	page, err := NewListNotificationsQuery(reader).Query(context.Background(), ListNotificationsMessage{
		Filter: core.NotificationFilter{Provider: " Twitter "},
	})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if !called {
		t.Fatalf("expected journal invocation")
	}
	if page.Total != 1 || page.Items[0].ID != "n_1" {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestListNotificationsQuery_RejectsInvalidFilter(t *testing.T) {
	reader := stubNotificationLister{}
	_, err := NewListNotificationsQuery(reader).Query(context.Background(), ListNotificationsMessage{
		Filter: core.NotificationFilter{Kinds: []core.NotificationKind{"authentication.maybe"}},
	})
	if err == nil {
		t.Fatalf("expected unknown kind to be rejected before the journal is read")
	}
}

func TestGetOutcomeQuery_ReadsMemoryJournal(t *testing.T) {
	ctx := context.Background()
	journal := core.NewMemoryJournal()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	_ = journal.Record(ctx, core.Notification{
		ID: "n_1", Kind: core.NotificationActivityPublished, ScopeID: "ses_1", Sequence: 1, OccurredAt: at,
	})
	_ = journal.Record(ctx, core.Notification{
		ID: "n_2", Kind: core.NotificationPublishingCompleted, ScopeID: "ses_1", Sequence: 2, OccurredAt: at,
	})

	qry := NewGetOutcomeQuery(journal)
	outcome, err := qry.Query(ctx, GetOutcomeMessage{ScopeID: " ses_1 "})
	if err != nil {
		t.Fatalf("get outcome: %v", err)
	}
	if outcome.ID != "n_2" || outcome.Kind != core.NotificationPublishingCompleted {
		t.Fatalf("unexpected outcome %#v", outcome)
	}

	_, err = qry.Query(ctx, GetOutcomeMessage{ScopeID: "ses_missing"})
	if !errors.Is(err, core.ErrNotificationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListNotificationsQuery_ReadsServiceJournal(t *testing.T) {
	journal := core.NewMemoryJournal()
	svc, err := core.NewService(core.Config{}, core.WithJournal(journal))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	defer func() { _ = svc.Close(ctx) }()

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	if err := attempt.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	page, err := NewListNotificationsQuery(journal).Query(ctx, ListNotificationsMessage{
		Filter: core.NotificationFilter{ScopeID: attempt.ID()},
	})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if page.Total != 1 || page.Items[0].Kind != core.NotificationAuthenticationNotCompleted {
		t.Fatalf("unexpected journal page %#v", page)
	}
}
