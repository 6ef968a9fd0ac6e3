package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-engage/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const outcomeCacheKeyPrefix = "go-engage::outcome::v1"

// CachedOutcomeReader caches terminal outcomes. An outcome never changes once
// recorded, so entries are only dropped by the cache TTL. Misses are not
// cached.
type CachedOutcomeReader struct {
	base  core.OutcomeReader
	cache repositorycache.CacheService
}

func NewCachedOutcomeReader(base core.OutcomeReader, cacheService repositorycache.CacheService) (*CachedOutcomeReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base outcome reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: outcome cache service is required")
	}
	return &CachedOutcomeReader{base: base, cache: cacheService}, nil
}

// OutcomeCacheKey returns go-engage::outcome::v1::<scope_id> with the scope
// id URL-path escaped.
func OutcomeCacheKey(scopeID string) (string, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return "", fmt.Errorf("sqlstore: scope id is required")
	}
	return outcomeCacheKeyPrefix + "::" + url.PathEscape(scopeID), nil
}

func (r *CachedOutcomeReader) GetOutcome(ctx context.Context, scopeID string) (core.Notification, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Notification{}, fmt.Errorf("sqlstore: cached outcome reader is not configured")
	}
	key, err := OutcomeCacheKey(scopeID)
	if err != nil {
		return core.Notification{}, err
	}
	scopeID = strings.TrimSpace(scopeID)
	outcome, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (core.Notification, error) {
		fetched, fetchErr := r.base.GetOutcome(ctx, scopeID)
		if fetchErr != nil {
			return core.Notification{}, fetchErr
		}
		return cloneNotification(fetched), nil
	})
	if err != nil {
		return core.Notification{}, err
	}
	return cloneNotification(outcome), nil
}

// Forget drops a cached outcome, for example after the journal was pruned.
func (r *CachedOutcomeReader) Forget(ctx context.Context, scopeID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached outcome reader is not configured")
	}
	key, err := OutcomeCacheKey(scopeID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, key)
}
