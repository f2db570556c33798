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

type TempTokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tempTokenRecord]
	now  func() time.Time
}

func NewTempTokenStore(db *bun.DB) (*TempTokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tempTokenRecord](db, tempTokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid temp token repository wiring: %w", err)
		}
	}
	return &TempTokenStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create inserts a new attempt. An expired attempt holding the same
// correlation code is removed in the same transaction; a live one makes the
// insert fail with core.ErrDuplicateCorrelationCode.
func (s *TempTokenStore) Create(ctx context.Context, in core.CreateTempTokenInput) (core.TempToken, error) {
	if s == nil || s.repo == nil {
		return core.TempToken{}, fmt.Errorf("sqlstore: temp token store is not configured")
	}
	in.CorrelationCode = strings.TrimSpace(in.CorrelationCode)
	if err := in.Validate(); err != nil {
		return core.TempToken{}, err
	}
	now := s.now()

	var created core.TempToken
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, deleteErr := tx.NewDelete().
			Model((*tempTokenRecord)(nil)).
			Where("correlation_code = ?", in.CorrelationCode).
			Where("expires_at IS NOT NULL").
			Where("expires_at <= ?", now).
			Exec(ctx)
		if deleteErr != nil {
			return deleteErr
		}

		record := newTempTokenRecord(uuid.NewString(), in, now)
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			if isUniqueViolation(createErr) {
				return core.ErrDuplicateCorrelationCode
			}
			return createErr
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.TempToken{}, err
	}
	return created, nil
}

// FindOne returns the oldest live attempt matching query.
func (s *TempTokenStore) FindOne(ctx context.Context, query core.Query) (core.TempToken, error) {
	if s == nil || s.repo == nil {
		return core.TempToken{}, fmt.Errorf("sqlstore: temp token store is not configured")
	}
	criteria, err := core.TempTokenCriteria(query)
	if err != nil {
		return core.TempToken{}, err
	}
	plan := planLookup(s.db.Dialect().Name(), core.FieldHookData, criteria)
	if plan.empty {
		return core.TempToken{}, core.ErrTempTokenNotFound
	}

	now := s.now()
	selectors := append([]repository.SelectCriteria{}, plan.selectors...)
	selectors = append(selectors,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("(?TableAlias.expires_at IS NULL OR ?TableAlias.expires_at > ?)", now)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if plan.exact {
		selectors = append(selectors, repository.SelectPaginate(1, 0))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.TempToken{}, err
	}
	for _, record := range records {
		token := record.toDomain()
		if core.MatchTempToken(token, criteria) {
			return token, nil
		}
	}
	return core.TempToken{}, core.ErrTempTokenNotFound
}

func (s *TempTokenStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: temp token store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.ErrTempTokenNotFound
	}
	res, err := s.db.NewDelete().
		Model((*tempTokenRecord)(nil)).
		Where("id = ?", trimmedID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.ErrTempTokenNotFound
	}
	return nil
}

// Consume deletes the attempt only while it is live; the affected row count
// decides which of several concurrent callbacks owns it.
func (s *TempTokenStore) Consume(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: temp token store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.ErrTempTokenNotFound
	}
	res, err := s.db.NewDelete().
		Model((*tempTokenRecord)(nil)).
		Where("id = ?", trimmedID).
		Where("(expires_at IS NULL OR expires_at > ?)", s.now()).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrTempTokenNotFound
	}
	return nil
}

func (s *TempTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: temp token store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*tempTokenRecord)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
