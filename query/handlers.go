package query

import (
	"context"

	"github.com/goliatone/go-provider-link/core"
)

type TokenReader interface {
	GetToken(ctx context.Context, id string) (core.Token, error)
	FindToken(ctx context.Context, query core.Query) (core.Token, error)
}

type GetTokenQuery struct {
	reader TokenReader
}

func NewGetTokenQuery(reader TokenReader) *GetTokenQuery {
	return &GetTokenQuery{reader: reader}
}

func (q *GetTokenQuery) Query(ctx context.Context, msg GetTokenMessage) (core.Token, error) {
	if q == nil || q.reader == nil {
		return core.Token{}, queryDependencyError("query: token reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Token{}, err
	}
	return q.reader.GetToken(ctx, msg.TokenID)
}

type FindTokenQuery struct {
	reader TokenReader
}

func NewFindTokenQuery(reader TokenReader) *FindTokenQuery {
	return &FindTokenQuery{reader: reader}
}

func (q *FindTokenQuery) Query(ctx context.Context, msg FindTokenMessage) (core.Token, error) {
	if q == nil || q.reader == nil {
		return core.Token{}, queryDependencyError("query: token reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Token{}, err
	}
	return q.reader.FindToken(ctx, msg.Query)
}
