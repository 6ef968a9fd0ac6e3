package engage_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync/atomic"
	"testing"
	"time"

	engage "github.com/goliatone/go-engage"
	"github.com/goliatone/go-engage/core"
	"github.com/goliatone/go-engage/inbound"
	enginemigrations "github.com/goliatone/go-engage/migrations"
	"github.com/goliatone/go-engage/query"
	sqlstore "github.com/goliatone/go-engage/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type compositionPersistenceConfig struct {
	dsn string
}

func (c compositionPersistenceConfig) GetDebug() bool                { return false }
func (c compositionPersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c compositionPersistenceConfig) GetServer() string             { return c.dsn }
func (c compositionPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c compositionPersistenceConfig) GetOtelIdentifier() string     { return "go-engage-composition" }

func TestComposition_CallbacksPersistOutcomesBehindTheFacade(t *testing.T) {
	ctx := context.Background()
	journal := newCompositionJournal(t)

	var counter atomic.Int64
	svc, err := engage.NewService(
		engage.Config{},
		engage.WithJournal(journal),
		engage.WithIDGenerator(func() string { return fmt.Sprintf("cmp_%d", counter.Add(1)) }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(closeCtx)
	})

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	outcomes, err := sqlstore.NewCachedOutcomeReader(journal, cacheService)
	if err != nil {
		t.Fatalf("new cached outcome reader: %v", err)
	}
	facade, err := engage.NewFacade(svc, engage.WithOutcomeReader(outcomes))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	dispatcher := inbound.NewDispatcher(nil, inbound.NewInMemoryClaimStore())
	callbacks := inbound.NewCallbacks(svc, svc)
	callbacks.Outcomes = outcomes
	if err := callbacks.RegisterAll(dispatcher); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}

	attempt, err := svc.RequestAuthentication(ctx, engage.AuthenticationRequest{Provider: core.ProviderGoogle})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	activity := engage.Activity{Action: "shared a link", URL: "https://example.com/post"}
	session, err := svc.RequestPublishing(ctx, engage.PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}

	requests := []inbound.Request{
		{
			Surface:  inbound.SurfaceAuthentication,
			ScopeID:  attempt.ID(),
			Body:     []byte(`{"stat":"ok","provider":"google","auth_info":{"profile":{"identifier":"https://www.google.com/profiles/7","displayName":"Grace"}}}`),
			Metadata: map[string]any{"callback_id": "auth-1"},
		},
		{
			Surface:  inbound.SurfacePublishing,
			ScopeID:  session.ID(),
			Body:     []byte(`{"stat":"ok","provider":"twitter"}`),
			Metadata: map[string]any{"callback_id": "pub-1"},
		},
		{
			Surface:  inbound.SurfacePublishing,
			ScopeID:  session.ID(),
			Body:     []byte(`{"stat":"complete"}`),
			Metadata: map[string]any{"callback_id": "pub-2"},
		},
	}
	for _, req := range requests {
		if _, err := dispatcher.Dispatch(ctx, req); err != nil {
			t.Fatalf("dispatch %s callback: %v", req.Surface, err)
		}
	}
	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.Flush(flushCtx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	outcome, err := facade.Queries().GetOutcome.Query(ctx, query.GetOutcomeMessage{ScopeID: attempt.ID()})
	if err != nil {
		t.Fatalf("get authentication outcome: %v", err)
	}
	if outcome.Kind != core.NotificationAuthenticationSucceeded || outcome.Provider != core.ProviderGoogle {
		t.Fatalf("unexpected authentication outcome %#v", outcome)
	}
	if outcome.AuthInfo == nil || outcome.AuthInfo.Profile().DisplayName != "Grace" {
		t.Fatalf("expected persisted profile, got %#v", outcome.AuthInfo)
	}

	page, err := facade.Queries().ListNotifications.Query(ctx, query.ListNotificationsMessage{
		Filter: core.NotificationFilter{ScopeID: session.ID()},
	})
	if err != nil {
		t.Fatalf("list session notifications: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected item and terminal notifications, got %d", page.Total)
	}
	if page.Items[0].Kind != core.NotificationActivityPublished || page.Items[1].Kind != core.NotificationPublishingCompleted {
		t.Fatalf("unexpected session notification order %s, %s", page.Items[0].Kind, page.Items[1].Kind)
	}
	if page.Items[0].Sequence >= page.Items[1].Sequence {
		t.Fatalf("expected increasing sequence numbers")
	}
}

func newCompositionJournal(t *testing.T) *sqlstore.JournalStore {
	t.Helper()
	dsn := fmt.Sprintf("file:engage-composition-%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(compositionPersistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = enginemigrations.Register(ctx, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, enginemigrations.DialectSQLite)
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	journal, err := sqlstore.NewJournalStore(client.DB())
	if err != nil {
		t.Fatalf("new journal store: %v", err)
	}
	return journal
}
