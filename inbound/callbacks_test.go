package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-engage/core"
)

type callbackRecorder struct {
	mu     sync.Mutex
	events []string
	tokens []core.TokenURLResult
	errs   []*core.EngageError
}

func (r *callbackRecorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *callbackRecorder) delegate() core.DelegateFuncs {
	return core.DelegateFuncs{
		OnAuthenticationNotCompleted: func(context.Context) { r.add("authenticationNotCompleted") },
		OnAuthenticationSucceeded: func(_ context.Context, info core.AuthInfo, provider core.Provider) {
			r.add("authenticationSucceeded:" + string(provider) + ":" + info.Profile().Identifier)
		},
		OnAuthenticationFailed: func(_ context.Context, err *core.EngageError, provider core.Provider) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("authenticationFailed:" + string(provider))
		},
		OnTokenURLReached: func(_ context.Context, result core.TokenURLResult, provider core.Provider) {
			r.mu.Lock()
			r.tokens = append(r.tokens, result)
			r.mu.Unlock()
			r.add("tokenURLReached:" + string(provider))
		},
		OnPublishingCompleted:    func(context.Context) { r.add("publishingCompleted") },
		OnPublishingNotCompleted: func(context.Context) { r.add("publishingNotCompleted") },
		OnActivityPublished: func(_ context.Context, activity core.Activity, provider core.Provider) {
			r.add("activityPublished:" + string(provider) + ":" + activity.Action)
		},
		OnActivityPublishFailed: func(_ context.Context, _ core.Activity, err *core.EngageError, provider core.Provider) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("activityPublishFailed:" + string(provider))
		},
	}
}

func (r *callbackRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newCallbackHarness(t *testing.T) (*core.Service, *Dispatcher, *callbackRecorder) {
	t.Helper()
	svc, dispatcher, recorder, _ := newCallbackHarnessWith(t, nil)
	return svc, dispatcher, recorder
}

// newCallbackHarnessWith lets configure adjust the callbacks before they are
// registered. By default callbacks read outcomes from the service journal.
func newCallbackHarnessWith(t *testing.T, configure func(*Callbacks, *core.Service)) (*core.Service, *Dispatcher, *callbackRecorder, *Callbacks) {
	t.Helper()
	var counter atomic.Int64
	svc, err := core.NewService(core.Config{}, core.WithIDGenerator(func() string {
		return fmt.Sprintf("id_%d", counter.Add(1))
	}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	recorder := &callbackRecorder{}
	if _, err := svc.AddObserver(recorder.delegate()); err != nil {
		t.Fatalf("add observer: %v", err)
	}
	callbacks := NewCallbacks(svc, svc)
	if reader, ok := svc.Journal().(core.OutcomeReader); ok {
		callbacks.Outcomes = reader
	}
	if configure != nil {
		configure(callbacks, svc)
	}
	dispatcher := NewDispatcher(nil, NewInMemoryClaimStore())
	if err := callbacks.RegisterAll(dispatcher); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	return svc, dispatcher, recorder, callbacks
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func flushService(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func callback(surface, scopeID, key, body string) Request {
	return Request{
		Surface:  surface,
		ScopeID:  scopeID,
		Body:     []byte(body),
		Metadata: map[string]any{"callback_id": key},
	}
}

func assertCallbackEvents(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected events\n got: %v\nwant: %v", got, want)
	}
}

const googleAuthInfo = `{"profile":{"identifier":"https://www.google.com/profiles/1","displayName":"Ada"}}`

func TestCallbacks_AuthenticationThenTokenURL(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder := newCallbackHarness(t)

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{TokenURL: "https://app.example.com/token"})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}

	body := `{"stat":"ok","provider":"Google","auth_info":` + googleAuthInfo + `}`
	result, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", body))
	if err != nil {
		t.Fatalf("dispatch auth callback: %v", err)
	}
	if result.StatusCode != http.StatusAccepted {
		t.Fatalf("expected accepted status, got %d", result.StatusCode)
	}

	tokenBody := `{"stat":"ok","headers":[{"name":"content-type","values":["application/json"]},{"name":"X-Trace","values":["a","b"]}],"payload":"{\"ok\":true}"}`
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceTokenURL, attempt.ID(), "cb-2", tokenBody)); err != nil {
		t.Fatalf("dispatch token callback: %v", err)
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(),
		"authenticationSucceeded:Google:https://www.google.com/profiles/1",
		"tokenURLReached:Google",
	)
	token := recorder.tokens[0]
	if token.URL != "https://app.example.com/token" || token.Payload != `{"ok":true}` {
		t.Fatalf("unexpected token result %#v", token)
	}
	if strings.Join(token.Headers.Names(), ",") != "Content-Type,X-Trace" || len(token.Headers.Values("x-trace")) != 2 {
		t.Fatalf("unexpected token headers %v", token.Headers.Names())
	}
}

func TestCallbacks_LosingTerminalCallbackIsAccepted(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder := newCallbackHarness(t)

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{TokenURL: "https://app.example.com/token"})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	ok := `{"stat":"ok","provider":"google","auth_info":` + googleAuthInfo + `}`
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", ok)); err != nil {
		t.Fatalf("dispatch auth callback: %v", err)
	}

	duplicate, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", ok))
	if err != nil || duplicate.Metadata["deduped"] != true {
		t.Fatalf("expected redelivered callback to be deduped, got %#v %v", duplicate, err)
	}

	cancel := `{"stat":"cancel"}`
	late, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-9", cancel))
	if err != nil {
		t.Fatalf("expected late cancel to be accepted, got %v", err)
	}
	if late.Metadata["outcome_already_delivered"] != true {
		t.Fatalf("expected outcome marker, got %#v", late.Metadata)
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(), "authenticationSucceeded:google:https://www.google.com/profiles/1")
}

func TestCallbacks_AuthenticationFailureCarriesProviderCode(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder := newCallbackHarness(t)

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{Provider: core.ProviderFacebook})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	body := `{"stat":"fail","provider":"facebook","err":{"code":100,"msg":"user denied access"}}`
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", body)); err != nil {
		t.Fatalf("dispatch failure callback: %v", err)
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(), "authenticationFailed:facebook")
	failure := recorder.errs[0]
	if failure.Code != "PROVIDER_100" || failure.Message != "user denied access" {
		t.Fatalf("unexpected failure payload %#v", failure)
	}
	if failure.Kind != core.ErrorKindAuthentication {
		t.Fatalf("unexpected failure kind %q", failure.Kind)
	}
}

func TestCallbacks_PublishingItemsThenCompletion(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder := newCallbackHarness(t)

	activity := core.Activity{Action: "shared a link", URL: "https://example.com/post"}
	session, err := svc.RequestPublishing(ctx, core.PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}

	callbacks := []string{
		`{"stat":"ok","provider":"facebook"}`,
		`{"stat":"ok","provider":"twitter","activity":{"action":"tweeted a link","url":"https://example.com/post"}}`,
		`{"stat":"fail","provider":"linkedin","err":{"code":"PUBLISH_DUPLICATE","msg":"already shared"}}`,
		`{"stat":"complete"}`,
	}
	for i, body := range callbacks {
		if _, err := dispatcher.Dispatch(ctx, callback(SurfacePublishing, session.ID(), fmt.Sprintf("cb-%d", i), body)); err != nil {
			t.Fatalf("dispatch publishing callback %d: %v", i, err)
		}
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(),
		"activityPublished:facebook:shared a link",
		"activityPublished:twitter:tweeted a link",
		"activityPublishFailed:linkedin",
		"publishingCompleted",
	)
	if recorder.errs[0].Code != core.CodePublishDuplicate {
		t.Fatalf("unexpected publish failure code %q", recorder.errs[0].Code)
	}
}

func TestCallbacks_RejectsUnknownScopesAndBodies(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, _ := newCallbackHarness(t)

	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, "att_missing", "cb-1", `{"stat":"cancel"}`)); err == nil {
		t.Fatalf("expected unknown attempt to be rejected")
	}
	if _, err := dispatcher.Dispatch(ctx, callback(SurfacePublishing, "ses_missing", "cb-1", `{"stat":"complete"}`)); err == nil {
		t.Fatalf("expected unknown session to be rejected")
	}

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	bad := []string{`not json`, `{"stat":"maybe"}`, `{"stat":"ok","auth_info":{"profile":{}}}`, ``}
	for i, body := range bad {
		if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), fmt.Sprintf("bad-%d", i), body)); err == nil {
			t.Fatalf("expected body %q to be rejected", body)
		}
	}
	if attempt.State() != core.AttemptStatePending {
		t.Fatalf("expected rejected callbacks to leave the attempt pending, got %q", attempt.State())
	}
}

func TestCallbacks_LateCallbackAfterServiceCancelIsAccepted(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder := newCallbackHarness(t)

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	if _, err := svc.CancelAuthentication(ctx); err != nil {
		t.Fatalf("cancel authentication: %v", err)
	}
	flushService(t, svc)

	ok := `{"stat":"ok","provider":"google","auth_info":` + googleAuthInfo + `}`
	late, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", ok))
	if err != nil {
		t.Fatalf("expected late ok to be accepted, got %v", err)
	}
	if late.StatusCode != http.StatusOK || late.Metadata["outcome_already_delivered"] != true {
		t.Fatalf("expected outcome marker with 200, got %#v", late)
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(), "authenticationNotCompleted")
}

func TestCallbacks_LateCallbackAfterCallbackCancelIsAccepted(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder, _ := newCallbackHarnessWith(t, func(callbacks *Callbacks, _ *core.Service) {
		callbacks.Outcomes = nil
	})

	attempt, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), "cb-1", `{"stat":"cancel"}`)); err != nil {
		t.Fatalf("dispatch cancel: %v", err)
	}

	bodies := []string{
		`{"stat":"ok","provider":"google","auth_info":` + googleAuthInfo + `}`,
		`{"stat":"fail","provider":"google","err":{"code":7,"msg":"late"}}`,
	}
	for i, body := range bodies {
		late, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, attempt.ID(), fmt.Sprintf("late-%d", i), body))
		if err != nil {
			t.Fatalf("late callback %d: %v", i, err)
		}
		if late.StatusCode != http.StatusOK || late.Metadata["outcome_already_delivered"] != true {
			t.Fatalf("late callback %d: expected outcome marker, got %#v", i, late)
		}
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(), "authenticationNotCompleted")
}

func TestCallbacks_LateCallbackAfterCompletedSessionIsAccepted(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher, recorder, _ := newCallbackHarnessWith(t, func(callbacks *Callbacks, _ *core.Service) {
		callbacks.Outcomes = nil
	})

	activity := core.Activity{Action: "shared a link", URL: "https://example.com/post"}
	session, err := svc.RequestPublishing(ctx, core.PublishingRequest{Activity: &activity})
	if err != nil {
		t.Fatalf("request publishing: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, callback(SurfacePublishing, session.ID(), "cb-1", `{"stat":"complete"}`)); err != nil {
		t.Fatalf("dispatch complete: %v", err)
	}
	flushService(t, svc)

	for i, body := range []string{`{"stat":"cancel"}`, `{"stat":"ok","provider":"facebook"}`} {
		late, err := dispatcher.Dispatch(ctx, callback(SurfacePublishing, session.ID(), fmt.Sprintf("late-%d", i), body))
		if err != nil {
			t.Fatalf("late publishing callback %d: %v", i, err)
		}
		if late.StatusCode != http.StatusOK || late.Metadata["outcome_already_delivered"] != true {
			t.Fatalf("late publishing callback %d: expected outcome marker, got %#v", i, late)
		}
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(), "publishingCompleted")
}

func TestCallbacks_RetainedScopesExpire(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc, dispatcher, recorder, callbacks := newCallbackHarnessWith(t, func(callbacks *Callbacks, _ *core.Service) {
		callbacks.Now = clock.Now
		callbacks.Retention = time.Minute
	})

	waiting, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{TokenURL: "https://app.example.com/token"})
	if err != nil {
		t.Fatalf("request authentication: %v", err)
	}
	cancelled, err := svc.RequestAuthentication(ctx, core.AuthenticationRequest{})
	if err != nil {
		t.Fatalf("request second authentication: %v", err)
	}
	ok := `{"stat":"ok","provider":"google","auth_info":` + googleAuthInfo + `}`
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, waiting.ID(), "cb-1", ok)); err != nil {
		t.Fatalf("dispatch ok: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceAuthentication, cancelled.ID(), "cb-2", `{"stat":"cancel"}`)); err != nil {
		t.Fatalf("dispatch cancel: %v", err)
	}
	if tokens, finished := callbacks.Pending(); tokens != 1 || finished != 1 {
		t.Fatalf("expected one token wait and one finished scope, got %d and %d", tokens, finished)
	}

	clock.Advance(2 * time.Minute)
	if tokens, finished := callbacks.Pending(); tokens != 0 || finished != 0 {
		t.Fatalf("expected retained scopes to expire, got %d and %d", tokens, finished)
	}
	flushService(t, svc)

	if _, err := dispatcher.Dispatch(ctx, callback(SurfaceTokenURL, waiting.ID(), "cb-3", `{"stat":"ok","payload":"late"}`)); err == nil {
		t.Fatalf("expected token callback after the wait expired to be rejected")
	}
	flushService(t, svc)

	assertCallbackEvents(t, recorder.snapshot(),
		"authenticationSucceeded:google:https://www.google.com/profiles/1",
		"authenticationNotCompleted",
	)
}
