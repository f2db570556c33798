package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-provider-link/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// lookupPlan splits normalized criteria into selectors pushed to SQL. When
// exact is false some criteria could not be expressed for the dialect and the
// caller has to filter the full candidate list in Go.
type lookupPlan struct {
	selectors []repository.SelectCriteria
	exact     bool
	empty     bool
}

func planLookup(name dialect.Name, column string, criteria []core.Criterion) lookupPlan {
	plan := lookupPlan{exact: true}
	for _, criterion := range criteria {
		if !criterion.IsData() {
			value, ok := scalarText(criterion.Value)
			if !ok {
				// A column never holds a structured value.
				plan.empty = true
				return plan
			}
			plan.selectors = append(plan.selectors, repository.SelectBy(criterion.Field, "=", value))
			continue
		}
		value, ok := scalarText(criterion.Value)
		if !ok {
			plan.exact = false
			continue
		}
		selector, ok := jsonPathSelector(name, column, criterion.Path, value)
		if !ok {
			plan.exact = false
			continue
		}
		plan.selectors = append(plan.selectors, selector)
	}
	return plan
}

func jsonPathSelector(name dialect.Name, column string, path []string, value string) (repository.SelectCriteria, bool) {
	switch name {
	case dialect.PG:
		pathLiteral := "{" + strings.Join(path, ",") + "}"
		return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.? #>> ? = ?", bun.Ident(column), pathLiteral, value)
		}), true
	case dialect.SQLite:
		jsonPath := "$"
		for _, segment := range path {
			jsonPath += `."` + segment + `"`
		}
		return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where(
				"(CASE json_type(?TableAlias.?, ?) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(?TableAlias.?, ?) AS TEXT) END) = ?",
				bun.Ident(column), jsonPath, bun.Ident(column), jsonPath, value,
			)
		}), true
	default:
		return nil, false
	}
}

// scalarText renders a query value the way both dialects print a JSON scalar
// as text.
func scalarText(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case bool:
		if typed {
			return "true", true
		}
		return "false", true
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(typed), true
	default:
		return "", false
	}
}
