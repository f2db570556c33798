package sqlstore

import (
	"time"

	"github.com/goliatone/go-provider-link/core"
	"github.com/uptrace/bun"
)

type tempTokenRecord struct {
	bun.BaseModel `bun:"table:provider_link_temp_tokens,alias:pltt"`

	ID              string         `bun:"id,pk"`
	CorrelationCode string         `bun:"correlation_code,notnull"`
	HookData        map[string]any `bun:"hook_data,type:jsonb,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt       *time.Time     `bun:"expires_at,nullzero"`
}

type tokenRecord struct {
	bun.BaseModel `bun:"table:provider_link_tokens,alias:plt"`

	ID              string         `bun:"id,pk"`
	CorrelationCode string         `bun:"correlation_code,notnull"`
	LinkageData     map[string]any `bun:"linkage_data,type:jsonb,notnull"`
	TargetURL       string         `bun:"target_url,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newTempTokenRecord(id string, in core.CreateTempTokenInput, now time.Time) *tempTokenRecord {
	record := &tempTokenRecord{
		ID:              id,
		CorrelationCode: in.CorrelationCode,
		HookData:        copyAnyMap(in.HookData),
		CreatedAt:       now,
	}
	if in.TTL > 0 {
		expiresAt := now.Add(in.TTL)
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *tempTokenRecord) toDomain() core.TempToken {
	if r == nil {
		return core.TempToken{}
	}
	token := core.TempToken{
		ID:              r.ID,
		CorrelationCode: r.CorrelationCode,
		HookData:        copyAnyMap(r.HookData),
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.ExpiresAt != nil {
		token.ExpiresAt = r.ExpiresAt.UTC()
	}
	return token
}

func (r *tokenRecord) toDomain() core.Token {
	if r == nil {
		return core.Token{}
	}
	return core.Token{
		ID:              r.ID,
		CorrelationCode: r.CorrelationCode,
		LinkageData:     copyAnyMap(r.LinkageData),
		TargetURL:       r.TargetURL,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
