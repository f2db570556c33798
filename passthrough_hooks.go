package providerlink

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-provider-link/core"
	glog "github.com/goliatone/go-logger/glog"
)

const PassthroughHookPack = "passthrough"

// PassthroughHooks links without talking to a provider. Connect keeps the
// request's query parameters (minus `code`) as hook data, callback turns them
// into linkage data and the queue worker only logs the task. It lets the
// binary run end to end in development.
func PassthroughHooks(logger core.Logger) HookFuncs {
	logger = glog.Ensure(logger)
	return HookFuncs{
		InitAccountFn: func(_ context.Context, r *http.Request, _ http.ResponseWriter) (map[string]any, error) {
			data := map[string]any{}
			for key, values := range r.URL.Query() {
				if key == "code" || len(values) == 0 {
					continue
				}
				data[key] = values[0]
			}
			return data, nil
		},
		ConnectAccountRetrieveTempTokenFn: func(ctx context.Context, r *http.Request, _ http.ResponseWriter, finder core.TempTokenFinder) (core.TempToken, error) {
			return finder.FindOne(ctx, core.Query{core.FieldCorrelationCode: r.URL.Query().Get("code")})
		},
		ConnectAccountRetrieveAuthDataFn: func(_ context.Context, r *http.Request, _ http.ResponseWriter, hookData map[string]any) (core.AuthResult, error) {
			linkage := make(map[string]any, len(hookData)+1)
			for key, value := range hookData {
				linkage[key] = value
			}
			if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
				linkage["state"] = state
			}
			target, _ := hookData["target_url"].(string)
			return core.AuthResult{LinkageData: linkage, TargetURL: target}, nil
		},
		UpdateAccountFn: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, nil
		},
		QueueWorkerFn: func(_ context.Context, task core.UploadTask) error {
			logger.Info("upload task received",
				"token_id", task.TokenID,
				"correlation_code", task.CorrelationCode,
				"target_url", task.TargetURL,
				"linkage_data", core.RedactLinkData(task.LinkageData),
			)
			return nil
		},
	}
}

// DefaultHookPacks returns a registry holding the passthrough pack.
func DefaultHookPacks(logger core.Logger) *HookPacks {
	packs := NewHookPacks()
	_ = packs.Register(HookPack{Name: PassthroughHookPack, Hooks: PassthroughHooks(logger)})
	return packs
}
