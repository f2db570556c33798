package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-provider-link/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tokenCacheKeyPrefix = "go-provider-link::token::v1"

// CachedTokenStore caches Get by id. Tokens are immutable once created, so
// nothing is invalidated on write.
type CachedTokenStore struct {
	base  core.TokenStore
	cache repositorycache.CacheService
}

func NewCachedTokenStore(base core.TokenStore, cacheService repositorycache.CacheService) (*CachedTokenStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base token store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: token cache service is required")
	}
	return &CachedTokenStore{base: base, cache: cacheService}, nil
}

// TokenCacheKey returns go-provider-link::token::v1::<id> with the id
// URL-path escaped.
func TokenCacheKey(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: token id is required")
	}
	return tokenCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedTokenStore) Create(ctx context.Context, in core.CreateTokenInput) (core.Token, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Token{}, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedTokenStore) Get(ctx context.Context, id string) (core.Token, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Token{}, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	cacheKey, err := TokenCacheKey(id)
	if err != nil {
		return core.Token{}, core.ErrTokenNotFound
	}
	token, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Token, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(id))
		if fetchErr != nil {
			return core.Token{}, fetchErr
		}
		return cloneToken(fetched), nil
	})
	if err != nil {
		return core.Token{}, err
	}
	return cloneToken(token), nil
}

func (s *CachedTokenStore) FindOne(ctx context.Context, query core.Query) (core.Token, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Token{}, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	return s.base.FindOne(ctx, query)
}

// Forget drops a cached token, for hosts that delete tokens out of band.
func (s *CachedTokenStore) Forget(ctx context.Context, id string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached token store is not configured")
	}
	cacheKey, err := TokenCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneToken(token core.Token) core.Token {
	cloned := token
	cloned.LinkageData = copyAnyMap(token.LinkageData)
	return cloned
}
