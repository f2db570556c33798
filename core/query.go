package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const (
	FieldID              = "id"
	FieldCorrelationCode = "correlation_code"
	FieldHookData        = "hook_data"
	FieldLinkageData     = "linkage_data"
	FieldTargetURL       = "target_url"
)

// Query is a lookup predicate: every field path must equal its value.
// Paths are either a column (`id`, `correlation_code`) or a dotted path
// into the record's data map (`hook_data.account.id`).
type Query map[string]any

// Criterion is one normalized predicate of a Query.
type Criterion struct {
	Field string
	Path  []string
	Value any
}

// IsData reports whether the criterion targets the data map.
func (c Criterion) IsData() bool {
	return len(c.Path) > 0
}

var tempTokenFieldAliases = map[string]string{
	"id":               FieldID,
	"_id":              FieldID,
	"correlation_code": FieldCorrelationCode,
	"correlationcode":  FieldCorrelationCode,
	"cluestrcode":      FieldCorrelationCode,
	"code":             FieldCorrelationCode,
	"hook_data":        FieldHookData,
	"hookdata":         FieldHookData,
	"datas":            FieldHookData,
	"data":             FieldHookData,
}

var tokenFieldAliases = map[string]string{
	"id":               FieldID,
	"_id":              FieldID,
	"correlation_code": FieldCorrelationCode,
	"correlationcode":  FieldCorrelationCode,
	"target_url":       FieldTargetURL,
	"targeturl":        FieldTargetURL,
	"linkage_data":     FieldLinkageData,
	"linkagedata":      FieldLinkageData,
	"datas":            FieldLinkageData,
	"data":             FieldLinkageData,
}

// TempTokenCriteria normalizes q against the TempToken record shape.
func TempTokenCriteria(q Query) ([]Criterion, error) {
	return normalizeQuery(q, tempTokenFieldAliases, FieldHookData)
}

// TokenCriteria normalizes q against the Token record shape.
func TokenCriteria(q Query) ([]Criterion, error) {
	return normalizeQuery(q, tokenFieldAliases, FieldLinkageData)
}

func normalizeQuery(q Query, aliases map[string]string, dataField string) ([]Criterion, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidQuery)
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Criterion, 0, len(keys))
	for _, key := range keys {
		segments := strings.Split(strings.TrimSpace(key), ".")
		head, ok := aliases[strings.ToLower(strings.TrimSpace(segments[0]))]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported field %q", ErrInvalidQuery, key)
		}
		path := segments[1:]
		if head == dataField {
			if len(path) == 0 {
				return nil, fmt.Errorf("%w: field %q needs a key path", ErrInvalidQuery, key)
			}
			for _, segment := range path {
				if err := validatePathSegment(segment); err != nil {
					return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, key, err)
				}
			}
		} else if len(path) > 0 {
			return nil, fmt.Errorf("%w: field %q is not a map", ErrInvalidQuery, key)
		}
		out = append(out, Criterion{
			Field: head,
			Path:  append([]string(nil), path...),
			Value: q[key],
		})
	}
	return out, nil
}

func validatePathSegment(segment string) error {
	if strings.TrimSpace(segment) == "" || segment != strings.TrimSpace(segment) {
		return fmt.Errorf("empty or padded path segment")
	}
	if strings.ContainsAny(segment, "\"'`$[]{}\\,") {
		return fmt.Errorf("path segment %q has reserved characters", segment)
	}
	return nil
}

// MatchTempToken reports whether token satisfies every criterion.
func MatchTempToken(token TempToken, criteria []Criterion) bool {
	for _, criterion := range criteria {
		var actual any
		var found bool
		switch criterion.Field {
		case FieldID:
			actual, found = token.ID, true
		case FieldCorrelationCode:
			actual, found = token.CorrelationCode, true
		case FieldHookData:
			actual, found = lookupPath(token.HookData, criterion.Path)
		}
		if !found || !valuesEqual(actual, criterion.Value) {
			return false
		}
	}
	return true
}

// MatchToken reports whether token satisfies every criterion.
func MatchToken(token Token, criteria []Criterion) bool {
	for _, criterion := range criteria {
		var actual any
		var found bool
		switch criterion.Field {
		case FieldID:
			actual, found = token.ID, true
		case FieldCorrelationCode:
			actual, found = token.CorrelationCode, true
		case FieldTargetURL:
			actual, found = token.TargetURL, true
		case FieldLinkageData:
			actual, found = lookupPath(token.LinkageData, criterion.Path)
		}
		if !found || !valuesEqual(actual, criterion.Value) {
			return false
		}
	}
	return true
}

func lookupPath(data map[string]any, path []string) (any, bool) {
	var current any = data
	for _, segment := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valuesEqual compares scalars by their printed form so values survive a
// JSON round trip (int vs float64).
func valuesEqual(actual, expected any) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	if isScalar(actual) && isScalar(expected) {
		return fmt.Sprint(actual) == fmt.Sprint(expected)
	}
	return false
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
