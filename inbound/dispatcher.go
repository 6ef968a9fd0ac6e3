package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-engage/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	SurfaceAuthentication = "authentication"
	SurfaceTokenURL       = "token_url"
	SurfacePublishing     = "publishing"
)

// Request is one callback posted by a dialog. ScopeID names the attempt or
// session the callback belongs to.
type Request struct {
	Surface  string
	ScopeID  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Handler interface {
	Surface() string
	Handle(ctx context.Context, req Request) (Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// ClaimStore guards callback processing. Claim reports accepted=false while
// a live claim or a completed entry exists for key.
type ClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type IdempotencyKeyExtractor func(req Request) (string, error)

type Dispatcher struct {
	Verifier   Verifier
	Store      ClaimStore
	ExtractKey IdempotencyKeyExtractor
	KeyTTL     time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(verifier Verifier, store ClaimStore) *Dispatcher {
	return &Dispatcher{
		Verifier:   verifier,
		Store:      store,
		ExtractKey: DefaultIdempotencyKeyExtractor,
		KeyTTL:     10 * time.Minute,
		handlers:   map[string]Handler{},
	}
}

func (d *Dispatcher) Register(handler Handler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	surface := normalizeSurface(handler.Surface())
	if !isSupportedSurface(surface) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"surface": surface},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]Handler{}
	}
	if _, exists := d.handlers[surface]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for surface %q", surface),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.EngageErrorConflict,
			map[string]any{"surface": surface},
		)
	}
	d.handlers[surface] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if d == nil {
		return Result{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.ScopeID = strings.TrimSpace(req.ScopeID)
	req.Surface = normalizeSurface(req.Surface)
	if req.ScopeID == "" {
		return Result{}, inboundBadInput("inbound: scope id is required", map[string]any{
			"surface": req.Surface,
		})
	}
	fields := map[string]any{"scope_id": req.ScopeID, "surface": req.Surface}
	if !isSupportedSurface(req.Surface) {
		return Result{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", req.Surface),
			fields,
		)
	}
	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return Result{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"scope_id": req.ScopeID,
					"surface":  req.Surface,
					"rejected": true,
				},
			}, inboundWrapError(
				err,
				goerrors.CategoryAuth,
				"inbound: callback verification failed",
				http.StatusUnauthorized,
				core.EngageErrorUnauthorized,
				fields,
			)
		}
	}

	claimID := ""
	if d.Store != nil {
		extractor := d.ExtractKey
		if extractor == nil {
			extractor = DefaultIdempotencyKeyExtractor
		}
		key, err := extractor(req)
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: resolve idempotency key",
				http.StatusBadRequest,
				core.EngageErrorBadInput,
				fields,
			)
		}
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, req.ScopeID+":"+req.Surface+":"+key, d.keyTTL())
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.EngageErrorCallbackFailed,
				map[string]any{
					"scope_id":    req.ScopeID,
					"surface":     req.Surface,
					"idempotency": key,
				},
			)
		}
		if !accepted {
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata: map[string]any{
					"scope_id": req.ScopeID,
					"surface":  req.Surface,
					"deduped":  true,
				},
			}, nil
		}
	}

	handler := d.handlerFor(req.Surface)
	if handler == nil {
		err := inboundNotFound(
			fmt.Sprintf("inbound: no handler registered for surface %q", req.Surface),
			fields,
		)
		return Result{}, d.releaseClaim(ctx, claimID, err, fields)
	}
	result, err := handler.Handle(ctx, req)
	if err != nil {
		handlerErr := err
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			handlerErr = inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: handler execution failed",
				http.StatusBadGateway,
				core.EngageErrorCallbackFailed,
				fields,
			)
		}
		return Result{}, d.releaseClaim(ctx, claimID, handlerErr, fields)
	}
	if !result.Accepted || result.StatusCode >= http.StatusInternalServerError {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusBadGateway,
			core.EngageErrorCallbackFailed,
			map[string]any{
				"scope_id":    req.ScopeID,
				"surface":     req.Surface,
				"status_code": result.StatusCode,
			},
		)
		return result, d.releaseClaim(ctx, claimID, retryErr, fields)
	}
	if d.Store != nil && claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: complete idempotency claim",
				http.StatusInternalServerError,
				core.EngageErrorCallbackFailed,
				map[string]any{"scope_id": req.ScopeID, "surface": req.Surface, "claim_id": claimID},
			)
		}
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["scope_id"] = req.ScopeID
	result.Metadata["surface"] = req.Surface
	return result, nil
}

// releaseClaim marks the claim retryable and returns cause, joined with any
// store failure.
func (d *Dispatcher) releaseClaim(ctx context.Context, claimID string, cause error, fields map[string]any) error {
	if d.Store == nil || claimID == "" {
		return cause
	}
	if failErr := d.Store.Fail(ctx, claimID, cause, time.Time{}); failErr != nil {
		metadata := map[string]any{"claim_id": claimID}
		for key, value := range fields {
			metadata[key] = value
		}
		return errors.Join(
			cause,
			inboundWrapError(
				failErr,
				goerrors.CategoryOperation,
				"inbound: mark idempotency claim failed",
				http.StatusInternalServerError,
				core.EngageErrorInternal,
				metadata,
			),
		)
	}
	return cause
}

// DefaultIdempotencyKeyExtractor reads idempotency_key or callback_id from
// metadata, then the Idempotency-Key or X-Callback-Id header.
func DefaultIdempotencyKeyExtractor(req Request) (string, error) {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["idempotency_key"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["callback_id"]); value != "" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-callback-id"); value != "" {
			return value, nil
		}
	}
	return "", inboundBadInput("inbound: idempotency key is required", map[string]any{
		"scope_id": req.ScopeID,
		"surface":  req.Surface,
	})
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

func (d *Dispatcher) handlerFor(surface string) Handler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeSurface(surface)]
}

func normalizeSurface(surface string) string {
	return strings.TrimSpace(strings.ToLower(surface))
}

func isSupportedSurface(surface string) bool {
	switch normalizeSurface(surface) {
	case SurfaceAuthentication, SurfaceTokenURL, SurfacePublishing:
		return true
	default:
		return false
	}
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
