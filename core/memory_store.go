package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTempTokenStore keeps TempTokens in process. It is meant for tests
// and single-replica deployments.
type MemoryTempTokenStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]TempToken
	codes   map[string]string
}

func NewMemoryTempTokenStore() *MemoryTempTokenStore {
	return &MemoryTempTokenStore{
		now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]TempToken{},
		codes:   map[string]string{},
	}
}

func (s *MemoryTempTokenStore) Create(_ context.Context, in CreateTempTokenInput) (TempToken, error) {
	if s == nil {
		return TempToken{}, fmt.Errorf("core: temp token store is not configured")
	}
	if err := in.Validate(); err != nil {
		return TempToken{}, err
	}
	code := strings.TrimSpace(in.CorrelationCode)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.codes[code]; ok {
		existing := s.entries[id]
		if !existing.Expired(now) {
			return TempToken{}, ErrDuplicateCorrelationCode
		}
		delete(s.entries, id)
		delete(s.codes, code)
	}

	token := TempToken{
		ID:              uuid.NewString(),
		CorrelationCode: code,
		HookData:        copyAnyMap(in.HookData),
		CreatedAt:       now,
	}
	if in.TTL > 0 {
		token.ExpiresAt = now.Add(in.TTL)
	}
	s.entries[token.ID] = token
	s.codes[code] = token.ID
	return cloneTempToken(token), nil
}

// FindOne returns the oldest live TempToken matching query.
func (s *MemoryTempTokenStore) FindOne(_ context.Context, query Query) (TempToken, error) {
	if s == nil {
		return TempToken{}, fmt.Errorf("core: temp token store is not configured")
	}
	criteria, err := TempTokenCriteria(query)
	if err != nil {
		return TempToken{}, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]TempToken, 0, 1)
	for _, token := range s.entries {
		if token.Expired(now) || !MatchTempToken(token, criteria) {
			continue
		}
		matches = append(matches, token)
	}
	if len(matches) == 0 {
		return TempToken{}, ErrTempTokenNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return cloneTempToken(matches[0]), nil
}

func (s *MemoryTempTokenStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: temp token store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.entries[id]
	if !ok {
		return ErrTempTokenNotFound
	}
	delete(s.entries, id)
	if s.codes[token.CorrelationCode] == id {
		delete(s.codes, token.CorrelationCode)
	}
	return nil
}

func (s *MemoryTempTokenStore) Consume(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: temp token store is not configured")
	}
	id = strings.TrimSpace(id)
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.entries[id]
	if !ok || token.Expired(now) {
		return ErrTempTokenNotFound
	}
	delete(s.entries, id)
	if s.codes[token.CorrelationCode] == id {
		delete(s.codes, token.CorrelationCode)
	}
	return nil
}

func (s *MemoryTempTokenStore) PurgeExpired(_ context.Context, before time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: temp token store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, token := range s.entries {
		if !token.Expired(before) {
			continue
		}
		delete(s.entries, id)
		if s.codes[token.CorrelationCode] == id {
			delete(s.codes, token.CorrelationCode)
		}
		purged++
	}
	return purged, nil
}

// Len reports how many records are held, expired ones included.
func (s *MemoryTempTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type MemoryTokenStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]Token{},
	}
}

func (s *MemoryTokenStore) Create(_ context.Context, in CreateTokenInput) (Token, error) {
	if s == nil {
		return Token{}, fmt.Errorf("core: token store is not configured")
	}
	token := Token{
		ID:              uuid.NewString(),
		CorrelationCode: strings.TrimSpace(in.CorrelationCode),
		LinkageData:     copyAnyMap(in.LinkageData),
		TargetURL:       strings.TrimSpace(in.TargetURL),
		CreatedAt:       s.now(),
	}
	s.mu.Lock()
	s.entries[token.ID] = token
	s.mu.Unlock()
	return cloneToken(token), nil
}

func (s *MemoryTokenStore) Get(_ context.Context, id string) (Token, error) {
	if s == nil {
		return Token{}, fmt.Errorf("core: token store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return cloneToken(token), nil
}

func (s *MemoryTokenStore) FindOne(_ context.Context, query Query) (Token, error) {
	if s == nil {
		return Token{}, fmt.Errorf("core: token store is not configured")
	}
	criteria, err := TokenCriteria(query)
	if err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found Token
	for _, token := range s.entries {
		if !MatchToken(token, criteria) {
			continue
		}
		if found.IsZero() || token.CreatedAt.Before(found.CreatedAt) {
			found = token
		}
	}
	if found.IsZero() {
		return Token{}, ErrTokenNotFound
	}
	return cloneToken(found), nil
}

func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MemoryStores bundles the in-process stores as a StoreProvider.
type MemoryStores struct {
	TempTokens *MemoryTempTokenStore
	Tokens     *MemoryTokenStore
}

func NewMemoryStores() MemoryStores {
	return MemoryStores{
		TempTokens: NewMemoryTempTokenStore(),
		Tokens:     NewMemoryTokenStore(),
	}
}

func (m MemoryStores) TempTokenStore() TempTokenStore { return m.TempTokens }

func (m MemoryStores) TokenStore() TokenStore { return m.Tokens }

var (
	_ TempTokenStore = (*MemoryTempTokenStore)(nil)
	_ TokenStore     = (*MemoryTokenStore)(nil)
	_ StoreProvider  = MemoryStores{}
)
