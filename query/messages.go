package query

import (
	"strings"

	"github.com/goliatone/go-provider-link/core"
)

const (
	TypeGetToken  = "provider_link.query.token.get"
	TypeFindToken = "provider_link.query.token.find"
)

type GetTokenMessage struct {
	TokenID string
}

func (GetTokenMessage) Type() string { return TypeGetToken }

func (m GetTokenMessage) Validate() error {
	if strings.TrimSpace(m.TokenID) == "" {
		return queryValidationError("token_id", "token id is required")
	}
	return nil
}

// FindTokenMessage carries a predicate query such as
// {"linkage_data.accountId": "42"}.
type FindTokenMessage struct {
	Query core.Query
}

func (FindTokenMessage) Type() string { return TypeFindToken }

func (m FindTokenMessage) Validate() error {
	if len(m.Query) == 0 {
		return queryValidationError("query", "at least one predicate is required")
	}
	if _, err := core.TokenCriteria(m.Query); err != nil {
		return queryWrapValidation(err, "query: invalid token predicate")
	}
	return nil
}
