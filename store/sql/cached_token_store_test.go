package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-provider-link/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubTokenStore struct {
	mu        sync.Mutex
	token     core.Token
	getCalls  int
	findCalls int
	getErr    error
}

func (s *stubTokenStore) Create(_ context.Context, in core.CreateTokenInput) (core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = core.Token{
		ID:              "tok_1",
		CorrelationCode: in.CorrelationCode,
		LinkageData:     copyAnyMap(in.LinkageData),
		TargetURL:       in.TargetURL,
	}
	return cloneToken(s.token), nil
}

func (s *stubTokenStore) Get(_ context.Context, id string) (core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Token{}, s.getErr
	}
	if id != s.token.ID {
		return core.Token{}, core.ErrTokenNotFound
	}
	return cloneToken(s.token), nil
}

func (s *stubTokenStore) FindOne(context.Context, core.Query) (core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	return cloneToken(s.token), nil
}

func TestCachedTokenStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubTokenStore{token: core.Token{ID: "tok_1", LinkageData: map[string]any{"accessToken": "a"}}}
	store, err := NewCachedTokenStore(base, newTestTokenCacheService(t))
	if err != nil {
		t.Fatalf("new cached token store: %v", err)
	}

	if _, err := store.Get(context.Background(), "tok_1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}
	token, err := store.Get(context.Background(), " tok_1 ")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}

	token.LinkageData["accessToken"] = "mutated"
	again, err := store.Get(context.Background(), "tok_1")
	if err != nil {
		t.Fatalf("third get: %v", err)
	}
	if again.LinkageData["accessToken"] != "a" {
		t.Fatalf("expected cached token to be isolated from caller mutation, got %v", again.LinkageData)
	}
}

func TestCachedTokenStore_ForgetForcesRefetch(t *testing.T) {
	base := &stubTokenStore{token: core.Token{ID: "tok_1"}}
	store, err := NewCachedTokenStore(base, newTestTokenCacheService(t))
	if err != nil {
		t.Fatalf("new cached token store: %v", err)
	}
	if _, err := store.Get(context.Background(), "tok_1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Forget(context.Background(), "tok_1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, err := store.Get(context.Background(), "tok_1"); err != nil {
		t.Fatalf("get after forget: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected forget to force a second base read, got %d", base.getCalls)
	}
}

func TestCachedTokenStore_FindOnePassesThrough(t *testing.T) {
	base := &stubTokenStore{token: core.Token{ID: "tok_1"}}
	store, err := NewCachedTokenStore(base, newTestTokenCacheService(t))
	if err != nil {
		t.Fatalf("new cached token store: %v", err)
	}
	for range 2 {
		if _, err := store.FindOne(context.Background(), core.Query{"id": "tok_1"}); err != nil {
			t.Fatalf("find one: %v", err)
		}
	}
	if base.findCalls != 2 {
		t.Fatalf("expected find calls to bypass cache, got %d", base.findCalls)
	}
}

func TestCachedTokenStore_PropagatesBaseErrors(t *testing.T) {
	base := &stubTokenStore{getErr: core.ErrTokenNotFound}
	store, err := NewCachedTokenStore(base, newTestTokenCacheService(t))
	if err != nil {
		t.Fatalf("new cached token store: %v", err)
	}
	if _, err := store.Get(context.Background(), "tok_404"); !errors.Is(err, core.ErrTokenNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
	if _, err := store.Get(context.Background(), "  "); !errors.Is(err, core.ErrTokenNotFound) {
		t.Fatalf("expected blank id to be not found, got %v", err)
	}
}

func TestTokenCacheKey_Contract(t *testing.T) {
	key, err := TokenCacheKey(" tok/alpha beta ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-provider-link::token::v1::tok%2Falpha%20beta"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}
}

func TestNewCachedTokenStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedTokenStore(nil, newTestTokenCacheService(t)); err == nil {
		t.Fatalf("expected error without base store")
	}
	if _, err := NewCachedTokenStore(&stubTokenStore{}, nil); err == nil {
		t.Fatalf("expected error without cache service")
	}
}

func newTestTokenCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
