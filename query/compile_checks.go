package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provider-link/core"
)

var (
	_ gocmd.Querier[GetTokenMessage, core.Token]  = (*GetTokenQuery)(nil)
	_ gocmd.Querier[FindTokenMessage, core.Token] = (*FindTokenQuery)(nil)
	_ TokenReader                                 = (*core.Engine)(nil)
)
