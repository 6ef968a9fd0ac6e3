package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// recordingObserver implements Delegate and records every callback as a
// short event string.
type recordingObserver struct {
	mu         sync.Mutex
	events     []string
	errors     []*EngageError
	authInfos  []AuthInfo
	activities []Activity
	tokens     []TokenURLResult
}

func (o *recordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) DialogFailedToShow(_ context.Context, err *EngageError) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
	o.add("dialogFailedToShow:" + err.Code)
}

func (o *recordingObserver) AuthenticationNotCompleted(context.Context) {
	o.add("authenticationNotCompleted")
}

func (o *recordingObserver) AuthenticationSucceeded(_ context.Context, info AuthInfo, provider Provider) {
	o.mu.Lock()
	o.authInfos = append(o.authInfos, info)
	o.mu.Unlock()
	o.add("authenticationSucceeded:" + string(provider))
}

func (o *recordingObserver) AuthenticationFailed(_ context.Context, err *EngageError, provider Provider) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
	o.add("authenticationFailed:" + string(provider))
}

func (o *recordingObserver) TokenURLReached(_ context.Context, result TokenURLResult, provider Provider) {
	o.mu.Lock()
	o.tokens = append(o.tokens, result)
	o.mu.Unlock()
	o.add("tokenURLReached:" + string(provider))
}

func (o *recordingObserver) TokenURLCallFailed(_ context.Context, tokenURL string, err *EngageError, provider Provider) {
	o.mu.Lock()
	o.tokens = append(o.tokens, TokenURLResult{URL: tokenURL})
	o.errors = append(o.errors, err)
	o.mu.Unlock()
	o.add("tokenURLCallFailed:" + string(provider))
}

func (o *recordingObserver) PublishingNotCompleted(context.Context) {
	o.add("publishingNotCompleted")
}

func (o *recordingObserver) PublishingCompleted(context.Context) {
	o.add("publishingCompleted")
}

func (o *recordingObserver) ActivityPublished(_ context.Context, activity Activity, provider Provider) {
	o.mu.Lock()
	o.activities = append(o.activities, activity)
	o.mu.Unlock()
	o.add("activityPublished:" + string(provider))
}

func (o *recordingObserver) ActivityPublishFailed(_ context.Context, activity Activity, err *EngageError, provider Provider) {
	o.mu.Lock()
	o.activities = append(o.activities, activity)
	o.errors = append(o.errors, err)
	o.mu.Unlock()
	o.add("activityPublishFailed:" + string(provider))
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *recordingObserver) errorSnapshot() []*EngageError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*EngageError(nil), o.errors...)
}

func sequentialIDs(prefix string) IDGenerator {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("%s_%d", prefix, counter.Add(1))
	}
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *recordingObserver) {
	t.Helper()
	options := append([]Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithIDGenerator(sequentialIDs("id")),
	}, opts...)
	svc, err := NewService(cfg, options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	observer := &recordingObserver{}
	if _, err := svc.AddObserver(observer); err != nil {
		t.Fatalf("add observer: %v", err)
	}
	return svc, observer
}

func flush(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func mustAuthInfo(t *testing.T, raw string) AuthInfo {
	t.Helper()
	info, err := ParseAuthInfo([]byte(raw))
	if err != nil {
		t.Fatalf("parse auth info: %v", err)
	}
	return info
}

// brianAuthInfo is the profile an "other" provider sends back in the
// canonical sign-in scenario.
func brianAuthInfo(t *testing.T) AuthInfo {
	t.Helper()
	return mustAuthInfo(t, `{
		"profile": {
			"displayName": "brian",
			"preferredUsername": "brian",
			"url": "http://brian.myopenid.com/",
			"providerName": "Other",
			"identifier": "http://brian.myopenid.com/"
		}
	}`)
}

func testActivity() Activity {
	return Activity{
		Action: "shared a link",
		URL:    "https://example.com/articles/1",
		Title:  "Article",
	}
}

func assertEvents(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected notifications:\n got: %v\nwant: %v", got, want)
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
