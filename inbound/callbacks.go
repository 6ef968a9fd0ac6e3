package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-engage/core"
)

const (
	statOK       = "ok"
	statFail     = "fail"
	statCancel   = "cancel"
	statComplete = "complete"
)

type AttemptResolver interface {
	Attempt(id string) (*core.AuthAttempt, bool)
}

type SessionResolver interface {
	Session(id string) (*core.PublishSession, bool)
}

// DefaultCallbackRetention bounds how long a succeeded attempt waits for its
// token URL callback and how long a finished scope answers late callbacks.
const DefaultCallbackRetention = 10 * time.Minute

// Callbacks turns dialog result posts into attempt and session transitions.
// Attempts that succeed through a callback stay reachable for their token URL
// callback after the service has released them. Scopes finished through a
// callback, or found terminal in Outcomes, answer late callbacks with
// outcome_already_delivered instead of not found.
type Callbacks struct {
	attempts AttemptResolver
	sessions SessionResolver

	// Outcomes is consulted when a scope is unknown and was not finished
	// through these callbacks, e.g. after CancelAuthentication.
	Outcomes  core.OutcomeReader
	Retention time.Duration
	Now       func() time.Time

	mu            sync.Mutex
	awaitingToken map[string]tokenWait
	finished      map[string]time.Time
}

type tokenWait struct {
	attempt   *core.AuthAttempt
	expiresAt time.Time
}

func NewCallbacks(attempts AttemptResolver, sessions SessionResolver) *Callbacks {
	return &Callbacks{
		attempts:      attempts,
		sessions:      sessions,
		Retention:     DefaultCallbackRetention,
		Now:           func() time.Time { return time.Now().UTC() },
		awaitingToken: map[string]tokenWait{},
		finished:      map[string]time.Time{},
	}
}

func (c *Callbacks) Handlers() []Handler {
	return []Handler{
		surfaceHandler{surface: SurfaceAuthentication, fn: c.handleAuthentication},
		surfaceHandler{surface: SurfaceTokenURL, fn: c.handleTokenURL},
		surfaceHandler{surface: SurfacePublishing, fn: c.handlePublishing},
	}
}

// RegisterAll registers a handler for every surface on dispatcher.
func (c *Callbacks) RegisterAll(dispatcher *Dispatcher) error {
	for _, handler := range c.Handlers() {
		if err := dispatcher.Register(handler); err != nil {
			return err
		}
	}
	return nil
}

type surfaceHandler struct {
	surface string
	fn      func(ctx context.Context, req Request) (Result, error)
}

func (h surfaceHandler) Surface() string { return h.surface }

func (h surfaceHandler) Handle(ctx context.Context, req Request) (Result, error) {
	return h.fn(ctx, req)
}

type callbackError struct {
	Code    callbackCode `json:"code"`
	Message string       `json:"msg"`
}

// callbackCode accepts both numeric and string error codes.
type callbackCode string

func (c *callbackCode) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*c = ""
		return nil
	}
	if raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		*c = callbackCode(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return fmt.Errorf("inbound: error code must be a string or number: %w", err)
	}
	*c = callbackCode(number.String())
	return nil
}

type authenticationCallback struct {
	Stat     string          `json:"stat"`
	Provider string          `json:"provider"`
	AuthInfo json.RawMessage `json:"auth_info"`
	Err      *callbackError  `json:"err"`
}

type callbackHeader struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type tokenURLCallback struct {
	Stat     string           `json:"stat"`
	Provider string           `json:"provider"`
	URL      string           `json:"url"`
	Headers  []callbackHeader `json:"headers"`
	Payload  string           `json:"payload"`
	Err      *callbackError   `json:"err"`
}

type callbackActivity struct {
	Action      string `json:"action"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserContent string `json:"user_content"`
	ActionLinks []struct {
		Text string `json:"text"`
		Href string `json:"href"`
	} `json:"action_links"`
}

type publishingCallback struct {
	Stat     string            `json:"stat"`
	Provider string            `json:"provider"`
	Activity *callbackActivity `json:"activity"`
	Err      *callbackError    `json:"err"`
}

func (c *Callbacks) handleAuthentication(ctx context.Context, req Request) (Result, error) {
	var payload authenticationCallback
	if err := decodeCallback(req, &payload); err != nil {
		return Result{}, err
	}
	attempt, err := c.resolveAttempt(ctx, req)
	if err != nil || attempt == nil {
		return lateCallbackResult(err)
	}
	provider := callbackProvider(payload.Provider)

	switch payload.Stat {
	case statOK:
		info, parseErr := core.ParseAuthInfo(payload.AuthInfo)
		if len(payload.AuthInfo) == 0 || parseErr != nil {
			return Result{}, inboundBadInput("inbound: invalid auth_info", callbackFields(req, parseErr))
		}
		err = attempt.Succeed(ctx, info, provider)
	case statFail:
		err = attempt.Fail(ctx, core.NewEngageError(
			core.ErrorKindAuthentication,
			payload.Err.code(),
			payload.Err.message(),
			nil,
		), provider)
	case statCancel:
		err = attempt.Cancel(ctx)
	default:
		return Result{}, unknownStat(req, payload.Stat)
	}
	switch {
	case err == nil && payload.Stat == statOK && attempt.TokenURL() != "":
		c.awaitToken(attempt)
	case err == nil || errors.Is(err, core.ErrOutcomeAlreadyDelivered):
		c.markFinished(req.ScopeID)
	}
	return callbackResult(err)
}

func (c *Callbacks) handleTokenURL(ctx context.Context, req Request) (Result, error) {
	var payload tokenURLCallback
	if err := decodeCallback(req, &payload); err != nil {
		return Result{}, err
	}
	attempt, err := c.resolveAttempt(ctx, req)
	if err != nil || attempt == nil {
		return lateCallbackResult(err)
	}
	provider := callbackProvider(payload.Provider)

	switch payload.Stat {
	case statOK:
		headers := core.NewResponseHeaders()
		for _, header := range payload.Headers {
			for _, value := range header.Values {
				headers.Add(header.Name, value)
			}
		}
		err = attempt.ReachTokenURL(ctx, core.TokenURLResult{
			URL:     payload.URL,
			Headers: headers,
			Payload: payload.Payload,
		}, provider)
	case statFail:
		err = attempt.FailTokenURL(ctx, payload.URL, core.NewEngageError(
			core.ErrorKindTokenExchange,
			payload.Err.code(),
			payload.Err.message(),
			nil,
		), provider)
	default:
		return Result{}, unknownStat(req, payload.Stat)
	}
	if err == nil || errors.Is(err, core.ErrOutcomeAlreadyDelivered) {
		c.forgetToken(req.ScopeID)
		c.markFinished(req.ScopeID)
	}
	return callbackResult(err)
}

func (c *Callbacks) handlePublishing(ctx context.Context, req Request) (Result, error) {
	var payload publishingCallback
	if err := decodeCallback(req, &payload); err != nil {
		return Result{}, err
	}
	if c == nil || c.sessions == nil {
		return Result{}, inboundInternal("inbound: session resolver is not configured", nil)
	}
	session, ok := c.sessions.Session(req.ScopeID)
	if !ok {
		if c.scopeFinished(ctx, req) {
			return callbackResult(core.ErrOutcomeAlreadyDelivered)
		}
		return Result{}, inboundNotFound("inbound: publishing session not found", callbackFields(req, nil))
	}
	provider := callbackProvider(payload.Provider)

	var err error
	switch payload.Stat {
	case statOK:
		err = session.Published(ctx, payload.Activity.toActivity(), provider)
	case statFail:
		err = session.PublishFailed(ctx, payload.Activity.toActivity(), core.NewPublishError(
			payload.Err.code(),
			payload.Err.message(),
			nil,
		), provider)
	case statComplete:
		err = session.Complete(ctx)
	case statCancel:
		err = session.Cancel(ctx)
	default:
		return Result{}, unknownStat(req, payload.Stat)
	}
	if payload.Stat == statComplete || payload.Stat == statCancel {
		if err == nil || errors.Is(err, core.ErrOutcomeAlreadyDelivered) {
			c.markFinished(req.ScopeID)
		}
	}
	return callbackResult(err)
}

// resolveAttempt returns a nil attempt and nil error when the scope already
// finished and the callback should be acknowledged.
func (c *Callbacks) resolveAttempt(ctx context.Context, req Request) (*core.AuthAttempt, error) {
	if c == nil || c.attempts == nil {
		return nil, inboundInternal("inbound: attempt resolver is not configured", nil)
	}
	c.mu.Lock()
	c.evictExpiredLocked(c.now())
	wait, ok := c.awaitingToken[req.ScopeID]
	c.mu.Unlock()
	if ok {
		return wait.attempt, nil
	}
	attempt, ok := c.attempts.Attempt(req.ScopeID)
	if ok {
		return attempt, nil
	}
	if c.scopeFinished(ctx, req) {
		return nil, nil
	}
	return nil, inboundNotFound("inbound: authentication attempt not found", map[string]any{"scope_id": req.ScopeID})
}

// scopeFinished reports whether the scope reached a terminal outcome. An
// authentication success in Outcomes does not settle a token URL callback.
func (c *Callbacks) scopeFinished(ctx context.Context, req Request) bool {
	c.mu.Lock()
	c.evictExpiredLocked(c.now())
	_, ok := c.finished[req.ScopeID]
	c.mu.Unlock()
	if ok {
		return true
	}
	if c.Outcomes == nil {
		return false
	}
	outcome, err := c.Outcomes.GetOutcome(ctx, req.ScopeID)
	if err != nil {
		return false
	}
	if req.Surface == SurfaceTokenURL && outcome.Kind == core.NotificationAuthenticationSucceeded {
		return false
	}
	return true
}

func (c *Callbacks) awaitToken(attempt *core.AuthAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.evictExpiredLocked(now)
	c.awaitingToken[attempt.ID()] = tokenWait{attempt: attempt, expiresAt: now.Add(c.retention())}
}

func (c *Callbacks) forgetToken(scopeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.awaitingToken, scopeID)
}

func (c *Callbacks) markFinished(scopeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.evictExpiredLocked(now)
	c.finished[scopeID] = now.Add(c.retention())
}

// Pending reports how many token waits and finished scopes are retained.
func (c *Callbacks) Pending() (awaitingToken int, finished int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(c.now())
	return len(c.awaitingToken), len(c.finished)
}

func (c *Callbacks) evictExpiredLocked(now time.Time) {
	for scopeID, wait := range c.awaitingToken {
		if !now.Before(wait.expiresAt) {
			delete(c.awaitingToken, scopeID)
		}
	}
	for scopeID, expiresAt := range c.finished {
		if !now.Before(expiresAt) {
			delete(c.finished, scopeID)
		}
	}
}

func (c *Callbacks) retention() time.Duration {
	if c.Retention > 0 {
		return c.Retention
	}
	return DefaultCallbackRetention
}

func (c *Callbacks) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func decodeCallback(req Request, target any) error {
	if len(bytes.TrimSpace(req.Body)) == 0 {
		return inboundBadInput("inbound: callback body is required", callbackFields(req, nil))
	}
	if err := json.Unmarshal(req.Body, target); err != nil {
		return inboundBadInput("inbound: invalid callback body", callbackFields(req, err))
	}
	return nil
}

// lateCallbackResult acknowledges a callback for a finished scope, or
// returns the resolution error.
func lateCallbackResult(err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return callbackResult(core.ErrOutcomeAlreadyDelivered)
}

// callbackProvider keeps the driver's spelling of the provider name.
func callbackProvider(name string) core.Provider {
	return core.Provider(strings.TrimSpace(name))
}

// callbackResult treats a losing terminal callback as accepted so a late
// dialog retry is not redelivered.
func callbackResult(err error) (Result, error) {
	if errors.Is(err, core.ErrOutcomeAlreadyDelivered) {
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"outcome_already_delivered": true},
		}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Accepted: true, StatusCode: http.StatusAccepted}, nil
}

func unknownStat(req Request, stat string) error {
	fields := callbackFields(req, nil)
	fields["stat"] = stat
	return inboundBadInput(fmt.Sprintf("inbound: unsupported callback stat %q", stat), fields)
}

func callbackFields(req Request, cause error) map[string]any {
	fields := map[string]any{"scope_id": req.ScopeID, "surface": req.Surface}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	return fields
}

func (e *callbackError) code() string {
	if e == nil {
		return ""
	}
	code := string(e.Code)
	if _, err := strconv.Atoi(code); err == nil {
		return "PROVIDER_" + code
	}
	return code
}

func (e *callbackError) message() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Message)
}

func (a *callbackActivity) toActivity() *core.Activity {
	if a == nil {
		return nil
	}
	activity := &core.Activity{
		Action:      a.Action,
		URL:         a.URL,
		Title:       a.Title,
		Description: a.Description,
		UserContent: a.UserContent,
	}
	for _, link := range a.ActionLinks {
		activity.ActionLinks = append(activity.ActionLinks, core.ActionLink{Text: link.Text, Href: link.Href})
	}
	return activity
}
