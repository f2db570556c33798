package core

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestAttemptState_SuccessPath(t *testing.T) {
	state := AttemptStateInitiated
	visited := []AttemptState{state}
	for !state.Terminal() {
		next, ok := state.Next()
		if !ok {
			t.Fatalf("expected a successor for %s", state)
		}
		state = next
		visited = append(visited, state)
	}
	want := []AttemptState{
		AttemptStateInitiated,
		AttemptStateCallbackReceived,
		AttemptStateAuthDataResolved,
		AttemptStateAccountUpdated,
		AttemptStateLinked,
		AttemptStateDispatched,
	}
	if !reflect.DeepEqual(visited, want) {
		t.Fatalf("unexpected path %v", visited)
	}
	if _, ok := AttemptStateFailed.Next(); ok {
		t.Fatalf("expected FAILED to have no successor")
	}
}

func TestTempToken_Expired(t *testing.T) {
	now := time.Now().UTC()
	token := TempToken{ID: "t1", ExpiresAt: now}
	if !token.Expired(now) {
		t.Fatalf("expected token to be expired at its expiry")
	}
	if token.Expired(now.Add(-time.Second)) {
		t.Fatalf("expected token to be live before expiry")
	}
	if (TempToken{ID: "t1"}).Expired(now) {
		t.Fatalf("expected token without expiry to never expire")
	}
}

func TestUploadTask_ParametersSurviveJSON(t *testing.T) {
	task := UploadTask{
		TokenID:         "tok_1",
		CorrelationCode: "code_1",
		AppID:           "appId",
		LinkageData:     map[string]any{"accessToken": "abc", "nested": map[string]any{"n": 1}},
		TargetURL:       "http://myprovider.example.org/config",
		CreatedAt:       time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC),
	}
	raw, err := json.Marshal(task.Parameters())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	decoded, err := UploadTaskFromParameters(params)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TokenID != task.TokenID || decoded.AppID != task.AppID || decoded.TargetURL != task.TargetURL {
		t.Fatalf("unexpected decoded task %#v", decoded)
	}
	if !decoded.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("expected created_at %s, got %s", task.CreatedAt, decoded.CreatedAt)
	}
	if decoded.LinkageData["accessToken"] != "abc" {
		t.Fatalf("unexpected linkage data %#v", decoded.LinkageData)
	}
	if _, ok := params["app_secret"]; ok {
		t.Fatalf("app secret must never be on a task")
	}
}

func TestUploadTaskFromParameters_RequiresTokenID(t *testing.T) {
	if _, err := UploadTaskFromParameters(map[string]any{"correlation_code": "c"}); err == nil {
		t.Fatalf("expected missing token id error")
	}
	if _, err := UploadTaskFromParameters(map[string]any{"token_id": "t", "linkage_data": "bad"}); err == nil {
		t.Fatalf("expected linkage data type error")
	}
}

func TestCopyAnyMap_IsDeep(t *testing.T) {
	in := map[string]any{"a": map[string]any{"b": []any{"c"}}}
	out := copyAnyMap(in)
	out["a"].(map[string]any)["b"].([]any)[0] = "changed"
	if in["a"].(map[string]any)["b"].([]any)[0] != "c" {
		t.Fatalf("expected deep copy")
	}
}
