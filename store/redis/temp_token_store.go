// Package redisstore keeps TempTokens in Redis so link attempts can be
// shared across replicas. Expiry is delegated to Redis key TTLs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provider-link/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "provider-link"

	keyTypeTempToken = "temptoken"
	keyTypeCode      = "code"
	keyTypeIndex     = "temptokens"

	scanBatchSize = 100
)

type TempTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

type Option func(*TempTokenStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *TempTokenStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TempTokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTempTokenStore wraps an existing client; the caller owns its lifecycle.
func NewTempTokenStore(client redis.UniversalClient, opts ...Option) (*TempTokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &TempTokenStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Open dials addr and verifies the connection.
func Open(ctx context.Context, addr string, opts ...Option) (*TempTokenStore, error) {
	client := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr)})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: failed to connect to redis: %w", err)
	}
	return NewTempTokenStore(client, opts...)
}

// Client exposes the connection so other redis-backed components can share it.
func (s *TempTokenStore) Client() redis.UniversalClient {
	if s == nil {
		return nil
	}
	return s.client
}

// Close releases the underlying client.
func (s *TempTokenStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

type storedTempToken struct {
	ID              string         `json:"id"`
	CorrelationCode string         `json:"correlation_code"`
	HookData        map[string]any `json:"hook_data"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
}

func (r storedTempToken) toDomain() core.TempToken {
	token := core.TempToken{
		ID:              r.ID,
		CorrelationCode: r.CorrelationCode,
		HookData:        r.HookData,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if token.HookData == nil {
		token.HookData = map[string]any{}
	}
	if r.ExpiresAt != nil {
		token.ExpiresAt = r.ExpiresAt.UTC()
	}
	return token
}

// Create claims the correlation code with SETNX and then writes the record.
// Codes of expired attempts are released by Redis itself.
func (s *TempTokenStore) Create(ctx context.Context, in core.CreateTempTokenInput) (core.TempToken, error) {
	if s == nil || s.client == nil {
		return core.TempToken{}, fmt.Errorf("redisstore: temp token store is not configured")
	}
	in.CorrelationCode = strings.TrimSpace(in.CorrelationCode)
	if err := in.Validate(); err != nil {
		return core.TempToken{}, err
	}

	now := s.now()
	record := storedTempToken{
		ID:              uuid.NewString(),
		CorrelationCode: in.CorrelationCode,
		HookData:        in.HookData,
		CreatedAt:       now,
	}
	if record.HookData == nil {
		record.HookData = map[string]any{}
	}
	if in.TTL > 0 {
		expiresAt := now.Add(in.TTL)
		record.ExpiresAt = &expiresAt
	}
	data, err := json.Marshal(record)
	if err != nil {
		return core.TempToken{}, fmt.Errorf("redisstore: failed to marshal temp token: %w", err)
	}

	codeKey := s.key(keyTypeCode, record.CorrelationCode)
	claimed, err := s.client.SetNX(ctx, codeKey, record.ID, in.TTL).Result()
	if err != nil {
		return core.TempToken{}, fmt.Errorf("redisstore: failed to claim correlation code: %w", err)
	}
	if !claimed {
		return core.TempToken{}, core.ErrDuplicateCorrelationCode
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(keyTypeTempToken, record.ID), data, in.TTL)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: record.ID})
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, codeKey).Err()
		return core.TempToken{}, fmt.Errorf("redisstore: failed to store temp token: %w", err)
	}
	return record.toDomain(), nil
}

// FindOne returns the oldest live attempt matching query. Lookups by id or
// correlation code resolve directly; anything else walks the creation index.
func (s *TempTokenStore) FindOne(ctx context.Context, query core.Query) (core.TempToken, error) {
	if s == nil || s.client == nil {
		return core.TempToken{}, fmt.Errorf("redisstore: temp token store is not configured")
	}
	criteria, err := core.TempTokenCriteria(query)
	if err != nil {
		return core.TempToken{}, err
	}

	id, direct, err := s.directID(ctx, criteria)
	if err != nil {
		return core.TempToken{}, err
	}
	if direct {
		if id == "" {
			return core.TempToken{}, core.ErrTempTokenNotFound
		}
		token, found, err := s.load(ctx, id)
		if err != nil {
			return core.TempToken{}, err
		}
		if found && !token.Expired(s.now()) && core.MatchTempToken(token, criteria) {
			return token, nil
		}
		return core.TempToken{}, core.ErrTempTokenNotFound
	}

	now := s.now()
	var match core.TempToken
	err = s.walkIndex(ctx, func(token core.TempToken) bool {
		if token.Expired(now) || !core.MatchTempToken(token, criteria) {
			return true
		}
		match = token
		return false
	})
	if err != nil {
		return core.TempToken{}, err
	}
	if match.IsZero() {
		return core.TempToken{}, core.ErrTempTokenNotFound
	}
	return match, nil
}

func (s *TempTokenStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: temp token store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.ErrTempTokenNotFound
	}
	token, found, err := s.load(ctx, trimmedID)
	if err != nil {
		return err
	}
	if !found {
		_ = s.client.ZRem(ctx, s.indexKey(), trimmedID).Err()
		return core.ErrTempTokenNotFound
	}
	return s.remove(ctx, token)
}

// Consume deletes the live record for id. DEL reports how many keys it
// removed, so only one concurrent caller sees 1 and owns the attempt.
func (s *TempTokenStore) Consume(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: temp token store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.ErrTempTokenNotFound
	}
	token, found, err := s.load(ctx, trimmedID)
	if err != nil {
		return err
	}
	if !found || token.Expired(s.now()) {
		return core.ErrTempTokenNotFound
	}
	removed, err := s.client.Del(ctx, s.key(keyTypeTempToken, trimmedID)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: failed to consume temp token: %w", err)
	}
	if removed == 0 {
		return core.ErrTempTokenNotFound
	}
	return s.remove(ctx, token)
}

// PurgeExpired removes records that expired at or before before and reports
// how many it deleted. Index entries whose record Redis already dropped are
// cleared too but not counted.
func (s *TempTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("redisstore: temp token store is not configured")
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: failed to read temp token index: %w", err)
	}
	purged := 0
	for start := 0; start < len(ids); start += scanBatchSize {
		batch := ids[start:min(start+scanBatchSize, len(ids))]
		tokens, err := s.loadMany(ctx, batch)
		if err != nil {
			return purged, err
		}
		for i, id := range batch {
			token, ok := tokens[i]
			if !ok {
				if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
					return purged, fmt.Errorf("redisstore: failed to drop stale index entry: %w", err)
				}
				continue
			}
			if !token.Expired(before) {
				continue
			}
			if err := s.remove(ctx, token); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}

func (s *TempTokenStore) remove(ctx context.Context, token core.TempToken) error {
	codeKey := s.key(keyTypeCode, token.CorrelationCode)
	owner, err := s.client.Get(ctx, codeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisstore: failed to read correlation code: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(keyTypeTempToken, token.ID))
		if owner == token.ID {
			pipe.Del(ctx, codeKey)
		}
		pipe.ZRem(ctx, s.indexKey(), token.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: failed to delete temp token: %w", err)
	}
	return nil
}

// directID reports the record id a query pins down, if any. An empty id
// with ok set means the query cannot match.
func (s *TempTokenStore) directID(ctx context.Context, criteria []core.Criterion) (string, bool, error) {
	for _, criterion := range criteria {
		if criterion.Field == core.FieldID {
			id, _ := criterion.Value.(string)
			return strings.TrimSpace(id), true, nil
		}
	}
	for _, criterion := range criteria {
		if criterion.Field != core.FieldCorrelationCode {
			continue
		}
		code, _ := criterion.Value.(string)
		if strings.TrimSpace(code) == "" {
			return "", true, nil
		}
		id, err := s.client.Get(ctx, s.key(keyTypeCode, strings.TrimSpace(code))).Result()
		if errors.Is(err, redis.Nil) {
			return "", true, nil
		}
		if err != nil {
			return "", true, fmt.Errorf("redisstore: failed to resolve correlation code: %w", err)
		}
		return id, true, nil
	}
	return "", false, nil
}

func (s *TempTokenStore) walkIndex(ctx context.Context, visit func(core.TempToken) bool) error {
	for start := int64(0); ; start += scanBatchSize {
		ids, err := s.client.ZRange(ctx, s.indexKey(), start, start+scanBatchSize-1).Result()
		if err != nil {
			return fmt.Errorf("redisstore: failed to read temp token index: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		tokens, err := s.loadMany(ctx, ids)
		if err != nil {
			return err
		}
		for i := range ids {
			token, ok := tokens[i]
			if !ok {
				continue
			}
			if !visit(token) {
				return nil
			}
		}
		if len(ids) < scanBatchSize {
			return nil
		}
	}
}

func (s *TempTokenStore) load(ctx context.Context, id string) (core.TempToken, bool, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeTempToken, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.TempToken{}, false, nil
		}
		return core.TempToken{}, false, fmt.Errorf("redisstore: failed to get temp token: %w", err)
	}
	token, err := decodeTempToken(data)
	if err != nil {
		return core.TempToken{}, false, err
	}
	return token, true, nil
}

// loadMany returns the decoded records present for ids, keyed by position.
func (s *TempTokenStore) loadMany(ctx context.Context, ids []string) (map[int]core.TempToken, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(keyTypeTempToken, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: failed to get temp tokens: %w", err)
	}
	out := make(map[int]core.TempToken, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		token, err := decodeTempToken([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[i] = token
	}
	return out, nil
}

func decodeTempToken(data []byte) (core.TempToken, error) {
	var stored storedTempToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return core.TempToken{}, fmt.Errorf("redisstore: failed to unmarshal temp token: %w", err)
	}
	return stored.toDomain(), nil
}

func (s *TempTokenStore) key(keyType, id string) string {
	return s.keyPrefix + ":" + keyType + ":" + id
}

func (s *TempTokenStore) indexKey() string {
	return s.keyPrefix + ":" + keyTypeIndex
}

var _ core.TempTokenStore = (*TempTokenStore)(nil)
