package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactLinkData copies hook or linkage data with credential-like values
// replaced, so it can be logged.
func RedactLinkData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	return redactMap(data)
}

func redactMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"grant",
	"authorization",
	"apikey",
	"api_key",
	"access_key",
	"refresh",
	"credential",
	"signature",
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "token_id",
		"temp_token_id",
		"correlation_code",
		"account_id",
		"target_url",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
