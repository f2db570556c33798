package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTempTokenNotFound        = errors.New("core: temp token not found")
	ErrTokenNotFound            = errors.New("core: token not found")
	ErrDuplicateCorrelationCode = errors.New("core: correlation code already in use")
	ErrInvalidQuery             = errors.New("core: invalid lookup query")
)

// AttemptState tracks a single link attempt through the handshake.
type AttemptState string

const (
	AttemptStateInitiated        AttemptState = "INITIATED"
	AttemptStateCallbackReceived AttemptState = "CALLBACK_RECEIVED"
	AttemptStateAuthDataResolved AttemptState = "AUTH_DATA_RESOLVED"
	AttemptStateAccountUpdated   AttemptState = "ACCOUNT_UPDATED"
	AttemptStateLinked           AttemptState = "LINKED"
	AttemptStateDispatched       AttemptState = "DISPATCHED"
	AttemptStateFailed           AttemptState = "FAILED"
)

var attemptTransitions = map[AttemptState]AttemptState{
	AttemptStateInitiated:        AttemptStateCallbackReceived,
	AttemptStateCallbackReceived: AttemptStateAuthDataResolved,
	AttemptStateAuthDataResolved: AttemptStateAccountUpdated,
	AttemptStateAccountUpdated:   AttemptStateLinked,
	AttemptStateLinked:           AttemptStateDispatched,
}

// Next returns the state that follows s on the success path.
func (s AttemptState) Next() (AttemptState, bool) {
	next, ok := attemptTransitions[s]
	return next, ok
}

func (s AttemptState) Terminal() bool {
	return s == AttemptStateDispatched || s == AttemptStateFailed
}

// TempToken is an in-flight link attempt created by the connect phase.
type TempToken struct {
	ID              string
	CorrelationCode string
	HookData        map[string]any
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (t TempToken) IsZero() bool {
	return strings.TrimSpace(t.ID) == "" && strings.TrimSpace(t.CorrelationCode) == ""
}

func (t TempToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type CreateTempTokenInput struct {
	CorrelationCode string
	HookData        map[string]any
	TTL             time.Duration
}

func (in CreateTempTokenInput) Validate() error {
	if strings.TrimSpace(in.CorrelationCode) == "" {
		return fmt.Errorf("core: correlation code is required")
	}
	if in.TTL < 0 {
		return fmt.Errorf("core: temp token ttl must not be negative")
	}
	return nil
}

// Token is the durable record of a completed link.
type Token struct {
	ID              string
	CorrelationCode string
	LinkageData     map[string]any
	TargetURL       string
	CreatedAt       time.Time
}

func (t Token) IsZero() bool {
	return strings.TrimSpace(t.ID) == ""
}

type CreateTokenInput struct {
	CorrelationCode string
	LinkageData     map[string]any
	TargetURL       string
}

// AuthResult is what the auth-data hook resolves: the final linkage data and
// the provider endpoint the link should be configured against.
type AuthResult struct {
	LinkageData map[string]any
	TargetURL   string
}

// UploadTask is the unit of background work dispatched after a link.
type UploadTask struct {
	TokenID         string
	CorrelationCode string
	AppID           string
	LinkageData     map[string]any
	TargetURL       string
	CreatedAt       time.Time
}

func (t UploadTask) Parameters() map[string]any {
	return map[string]any{
		"token_id":         t.TokenID,
		"correlation_code": t.CorrelationCode,
		"app_id":           t.AppID,
		"linkage_data":     copyAnyMap(t.LinkageData),
		"target_url":       t.TargetURL,
		"created_at":       t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// UploadTaskFromParameters rebuilds a task from Parameters output, including
// after a JSON round trip through a queue backend.
func UploadTaskFromParameters(params map[string]any) (UploadTask, error) {
	task := UploadTask{
		TokenID:         stringParam(params, "token_id"),
		CorrelationCode: stringParam(params, "correlation_code"),
		AppID:           stringParam(params, "app_id"),
		TargetURL:       stringParam(params, "target_url"),
	}
	if task.TokenID == "" {
		return UploadTask{}, fmt.Errorf("core: upload task token_id is required")
	}
	switch data := params["linkage_data"].(type) {
	case nil:
		task.LinkageData = map[string]any{}
	case map[string]any:
		task.LinkageData = copyAnyMap(data)
	default:
		return UploadTask{}, fmt.Errorf("core: upload task linkage_data has unsupported type %T", data)
	}
	switch created := params["created_at"].(type) {
	case time.Time:
		task.CreatedAt = created.UTC()
	case string:
		if strings.TrimSpace(created) != "" {
			parsed, err := time.Parse(time.RFC3339Nano, created)
			if err != nil {
				return UploadTask{}, fmt.Errorf("core: upload task created_at: %w", err)
			}
			task.CreatedAt = parsed.UTC()
		}
	}
	return task, nil
}

// ConnectResult reports what the connect phase did.
type ConnectResult struct {
	TempToken TempToken
	State     AttemptState
	Responded bool
}

// CallbackCompletion reports what the callback phase did.
type CallbackCompletion struct {
	Token       Token
	TempToken   TempToken
	RedirectURL string
	State       AttemptState
	Responded   bool
	Dispatched  bool
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// copyAnyMap deep-copies nested maps and slices so hook data handed to a
// hook never aliases stored state.
func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = copyAnyValue(value)
	}
	return out
}

func copyAnyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return copyAnyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = copyAnyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

func cloneTempToken(token TempToken) TempToken {
	cloned := token
	cloned.HookData = copyAnyMap(token.HookData)
	return cloned
}

func cloneToken(token Token) Token {
	cloned := token
	cloned.LinkageData = copyAnyMap(token.LinkageData)
	return cloned
}
