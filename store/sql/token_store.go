package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-provider-link/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{db: db, repo: repo}, nil
}

func (s *TokenStore) Create(ctx context.Context, in core.CreateTokenInput) (core.Token, error) {
	if s == nil || s.repo == nil {
		return core.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	record := &tokenRecord{
		ID:              uuid.NewString(),
		CorrelationCode: strings.TrimSpace(in.CorrelationCode),
		LinkageData:     copyAnyMap(in.LinkageData),
		TargetURL:       strings.TrimSpace(in.TargetURL),
		CreatedAt:       time.Now().UTC(),
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Token{}, err
	}
	return created.toDomain(), nil
}

func (s *TokenStore) Get(ctx context.Context, id string) (core.Token, error) {
	if s == nil || s.repo == nil {
		return core.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.Token{}, core.ErrTokenNotFound
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmedID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Token{}, err
	}
	if len(records) == 0 {
		return core.Token{}, core.ErrTokenNotFound
	}
	return records[0].toDomain(), nil
}

// FindOne returns the oldest token matching query.
func (s *TokenStore) FindOne(ctx context.Context, query core.Query) (core.Token, error) {
	if s == nil || s.repo == nil {
		return core.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	criteria, err := core.TokenCriteria(query)
	if err != nil {
		return core.Token{}, err
	}
	plan := planLookup(s.db.Dialect().Name(), core.FieldLinkageData, criteria)
	if plan.empty {
		return core.Token{}, core.ErrTokenNotFound
	}
	selectors := append([]repository.SelectCriteria{}, plan.selectors...)
	selectors = append(selectors, repository.OrderBy("created_at ASC"))
	if plan.exact {
		selectors = append(selectors, repository.SelectPaginate(1, 0))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Token{}, err
	}
	for _, record := range records {
		token := record.toDomain()
		if core.MatchToken(token, criteria) {
			return token, nil
		}
	}
	return core.Token{}, core.ErrTokenNotFound
}
