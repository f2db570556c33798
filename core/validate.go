package core

import (
	"reflect"
	"strings"
)

// ValidateConfig reports the first missing hook, then the first missing
// parameter, then any malformed value. It never mutates cfg.
func ValidateConfig(cfg Config) error {
	if name := firstMissingHook(cfg.Hooks); name != "" {
		return MissingHandlerError(name)
	}
	params := []struct {
		name  string
		value string
	}{
		{name: ParamAppID, value: cfg.CluestrAppID},
		{name: ParamAppSecret, value: cfg.CluestrAppSecret},
		{name: ParamConnectURL, value: cfg.ConnectURL},
	}
	for _, param := range params {
		if strings.TrimSpace(param.value) == "" {
			return MissingParameterError(param.name)
		}
	}
	return cfg.Validate()
}

func firstMissingHook(hooks Hooks) string {
	if isNilHooks(hooks) {
		return RequiredHooks[0]
	}
	presence, ok := hooks.(HookPresence)
	if !ok {
		return ""
	}
	missing := map[string]bool{}
	for _, name := range presence.MissingHooks() {
		missing[name] = true
	}
	for _, name := range RequiredHooks {
		if missing[name] {
			return name
		}
	}
	return ""
}

func isNilHooks(hooks Hooks) bool {
	if hooks == nil {
		return true
	}
	value := reflect.ValueOf(hooks)
	switch value.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return value.IsNil()
	default:
		return false
	}
}
