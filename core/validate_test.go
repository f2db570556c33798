package core

import (
	"strings"
	"testing"
	"time"
)

func TestValidateConfig_AcceptsCompleteConfig(t *testing.T) {
	if err := ValidateConfig(testConfig(newTestHooks(&hookRecorder{}))); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateConfig_ReportsEachMissingHook(t *testing.T) {
	unset := map[string]func(*HookFuncs){
		HookInitAccount:                     func(h *HookFuncs) { h.InitAccountFn = nil },
		HookConnectAccountRetrieveTempToken: func(h *HookFuncs) { h.ConnectAccountRetrieveTempTokenFn = nil },
		HookConnectAccountRetrieveAuthDatas: func(h *HookFuncs) { h.ConnectAccountRetrieveAuthDataFn = nil },
		HookUpdateAccount:                   func(h *HookFuncs) { h.UpdateAccountFn = nil },
		HookQueueWorker:                     func(h *HookFuncs) { h.QueueWorkerFn = nil },
	}
	for _, name := range RequiredHooks {
		t.Run(name, func(t *testing.T) {
			hooks := newTestHooks(&hookRecorder{})
			unset[name](&hooks)
			cfg := testConfig(hooks)
			// Parameters missing too: hooks are checked first.
			cfg.CluestrAppID = ""

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected error for missing %s", name)
			}
			if !strings.Contains(err.Error(), "Specify `"+name) {
				t.Fatalf("expected message naming %s, got %q", name, err.Error())
			}
			if !IsMissingHandler(err) {
				t.Fatalf("expected missing handler error, got %v", err)
			}
		})
	}
}

func TestValidateConfig_ReportsFirstMissingHookInOrder(t *testing.T) {
	hooks := newTestHooks(&hookRecorder{})
	hooks.UpdateAccountFn = nil
	hooks.ConnectAccountRetrieveTempTokenFn = nil

	err := ValidateConfig(testConfig(hooks))
	if err == nil || !strings.Contains(err.Error(), "Specify `"+HookConnectAccountRetrieveTempToken) {
		t.Fatalf("expected %s to be reported first, got %v", HookConnectAccountRetrieveTempToken, err)
	}
}

func TestValidateConfig_NilHooksReportsInitAccount(t *testing.T) {
	cfg := testConfig(nil)
	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "Specify `initAccount") {
		t.Fatalf("expected initAccount to be reported, got %v", err)
	}

	var typedNil *HookFuncs
	cfg.Hooks = typedNil
	err = ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "Specify `initAccount") {
		t.Fatalf("expected initAccount for typed nil hooks, got %v", err)
	}
}

func TestValidateConfig_ReportsEachMissingParameter(t *testing.T) {
	unset := map[string]func(*Config){
		ParamAppID:      func(c *Config) { c.CluestrAppID = "" },
		ParamAppSecret:  func(c *Config) { c.CluestrAppSecret = "  " },
		ParamConnectURL: func(c *Config) { c.ConnectURL = "" },
	}
	for name, mutate := range unset {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(newTestHooks(&hookRecorder{}))
			mutate(&cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected error for missing %s", name)
			}
			if !strings.Contains(err.Error(), "Specify `"+name) {
				t.Fatalf("expected message naming %s, got %q", name, err.Error())
			}
			if !IsMissingParameter(err) {
				t.Fatalf("expected missing parameter error, got %v", err)
			}
		})
	}
}

func TestValidateConfig_DoesNotMutateInput(t *testing.T) {
	cfg := testConfig(newTestHooks(&hookRecorder{}))
	cfg.ConnectPath = ""
	before := cfg.ConnectPath

	_ = ValidateConfig(cfg)
	if cfg.ConnectPath != before {
		t.Fatalf("expected config to stay untouched")
	}
}

func TestValidateConfig_RejectsMalformedValues(t *testing.T) {
	cases := map[string]func(*Config){
		"relative connect url": func(c *Config) { c.ConnectURL = "/init/connect" },
		"connect path":         func(c *Config) { c.ConnectPath = "init/connect" },
		"same paths":           func(c *Config) { c.CallbackPath = c.ConnectPath },
		"negative ttl":         func(c *Config) { c.TempTokenTTL = -time.Second },
		"negative timeout":     func(c *Config) { c.HookTimeout = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(newTestHooks(&hookRecorder{}))
			mutate(&cfg)
			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsConfigError(err) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}
