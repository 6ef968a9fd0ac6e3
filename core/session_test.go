package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishSession_ItemsThenCompletion(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	if err := session.Published(ctx, nil, ProviderFacebook); err != nil {
		t.Fatalf("published: %v", err)
	}
	rateLimited := NewPublishError(CodePublishRateLimited, "too many shares", nil)
	if err := session.PublishFailed(ctx, nil, rateLimited, ProviderTwitter); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := session.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(),
		"activityPublished:facebook",
		"activityPublishFailed:twitter",
		"publishingCompleted",
	)
	failure := observer.errorSnapshot()[0]
	if failure.Provider != ProviderTwitter || failure.Code != CodePublishRateLimited {
		t.Fatalf("unexpected publish failure payload: %#v", failure)
	}
	if observer.activities[0].URL != activity.URL {
		t.Fatalf("expected session activity to be shared, got %#v", observer.activities[0])
	}
	published, failed := session.Counts()
	if published != 1 || failed != 1 {
		t.Fatalf("unexpected counts published=%d failed=%d", published, failed)
	}
	if session.State() != SessionStateCompleted {
		t.Fatalf("expected completed state, got %q", session.State())
	}
}

func TestPublishSession_NoItemAfterTerminal(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	if err := session.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err = session.Published(ctx, nil, ProviderFacebook)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after cancel, got %v", err)
	}
	err = session.Complete(ctx)
	if !errors.Is(err, ErrOutcomeAlreadyDelivered) {
		t.Fatalf("expected outcome conflict, got %v", err)
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(), "publishingNotCompleted")
}

func TestPublishSession_CompleteWaitsForInflightItems(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	first, err := session.BeginItem(nil, ProviderLinkedIn)
	if err != nil {
		t.Fatalf("begin first item: %v", err)
	}
	second, err := session.BeginItem(nil, ProviderYammer)
	if err != nil {
		t.Fatalf("begin second item: %v", err)
	}
	if err := session.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if session.State() != SessionStateClosing {
		t.Fatalf("expected closing state, got %q", session.State())
	}
	if err := session.Cancel(ctx); err == nil {
		t.Fatalf("expected cancel of a closing session to be rejected")
	}
	if _, err := session.BeginItem(nil, ProviderFacebook); err == nil {
		t.Fatalf("expected new items to be rejected while closing")
	}

	if err := first.Succeed(ctx); err != nil {
		t.Fatalf("first item: %v", err)
	}
	flush(t, svc)
	assertEvents(t, observer.snapshot(), "activityPublished:linkedin")

	if err := second.Fail(ctx, NewPublishError("", "share rejected", nil)); err != nil {
		t.Fatalf("second item: %v", err)
	}
	if err := second.Succeed(ctx); !errors.Is(err, ErrOutcomeAlreadyDelivered) {
		t.Fatalf("expected item conflict, got %v", err)
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(),
		"activityPublished:linkedin",
		"activityPublishFailed:yammer",
		"publishingCompleted",
	)
	if observer.errorSnapshot()[0].Kind != ErrorKindPublish {
		t.Fatalf("expected publish error kind, got %q", observer.errorSnapshot()[0].Kind)
	}
}

func TestPublishSession_DrainTimeoutCompletesWithoutStragglers(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{
		Publishing: PublishingConfig{ItemDrainTimeout: 20 * time.Millisecond},
	})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	item, err := session.BeginItem(nil, ProviderFacebook)
	if err != nil {
		t.Fatalf("begin item: %v", err)
	}
	if err := session.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected drain timeout to complete the session")
	}
	if err := item.Succeed(ctx); err == nil {
		t.Fatalf("expected late item outcome to be rejected")
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(), "publishingCompleted")
}

func TestPublishSession_TimeoutCancels(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{
		Publishing: PublishingConfig{Timeout: 20 * time.Millisecond},
	})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected session to time out")
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(), "publishingNotCompleted")
	if session.State() != SessionStateNotCompleted {
		t.Fatalf("expected not completed state, got %q", session.State())
	}
}

func TestPublishSession_RejectsProvidersWithoutSocialPublishing(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	if _, err := session.BeginItem(nil, ProviderGoogle); err == nil {
		t.Fatalf("expected google to be rejected for social publishing")
	}
	if _, err := session.BeginItem(nil, ""); err == nil {
		t.Fatalf("expected empty provider to be rejected")
	}
	if _, err := session.BeginItem(&Activity{}, ProviderFacebook); err == nil {
		t.Fatalf("expected invalid item activity to be rejected")
	}
	flush(t, svc)
	if len(observer.snapshot()) != 0 {
		t.Fatalf("expected no notifications, got %v", observer.snapshot())
	}
}

func TestPublishSession_ItemActivityOverridesSessionActivity(t *testing.T) {
	ctx := context.Background()
	svc, observer := newTestService(t, Config{})

	activity := testActivity()
	session, err := svc.RequestPublishing(ctx, PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	custom := Activity{Action: "liked a photo", UserContent: "nice"}
	if err := session.Published(ctx, &custom, ProviderMySpace); err != nil {
		t.Fatalf("published: %v", err)
	}
	custom.Action = "mutated"
	if err := session.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	flush(t, svc)

	assertEvents(t, observer.snapshot(), "activityPublished:myspace", "publishingCompleted")
	if observer.activities[0].Action != "liked a photo" {
		t.Fatalf("expected item activity snapshot, got %q", observer.activities[0].Action)
	}
}
