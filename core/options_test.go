package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, Config) (Config, error) {
	return Config{}, errors.New("config source unreachable")
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewEngine_DefaultDependencies(t *testing.T) {
	engine, err := NewEngine(testConfig(newTestHooks(&hookRecorder{})))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	deps := engine.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if _, ok := deps.MetricsRecorder.(NopMetricsRecorder); !ok {
		t.Fatalf("expected nop metrics recorder, got %T", deps.MetricsRecorder)
	}
	if _, ok := deps.Dispatcher.(*InlineDispatcher); !ok {
		t.Fatalf("expected inline dispatcher, got %T", deps.Dispatcher)
	}
	if _, ok := deps.TokenStore.(*MemoryTokenStore); !ok {
		t.Fatalf("expected memory token store, got %T", deps.TokenStore)
	}
	cfg := engine.Config()
	if cfg.TempTokenTTL != DefaultTempTokenTTL || cfg.HookTimeout != DefaultHookTimeout {
		t.Fatalf("expected default durations, got ttl=%s timeout=%s", cfg.TempTokenTTL, cfg.HookTimeout)
	}
}

func TestNewEngine_WithXOverrides(t *testing.T) {
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	mapperCalled := false
	mapper := func(err error) *goerrors.Error {
		mapperCalled = true
		return goerrors.New("custom:"+err.Error(), goerrors.CategoryInternal)
	}
	tempTokens := NewMemoryTempTokenStore()
	tokens := NewMemoryTokenStore()
	dispatcher := failingDispatcher{err: errors.New("nope")}
	resolved := testConfig(nil)
	resolved.CallbackPath = "/custom/callback"

	engine, err := NewEngine(testConfig(newTestHooks(&hookRecorder{})),
		WithLogger(logger),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithMetricsRecorder(metrics),
		WithErrorMapper(mapper),
		WithTempTokenStore(tempTokens),
		WithTokenStore(tokens),
		WithDispatcher(dispatcher),
		WithConfigProvider(&fixedConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(&fixedOptionsResolver{cfg: resolved}),
		nil,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	deps := engine.Dependencies()
	if deps.Logger != Logger(logger) {
		t.Fatalf("expected custom logger")
	}
	if deps.MetricsRecorder != MetricsRecorder(metrics) {
		t.Fatalf("expected custom metrics recorder")
	}
	if deps.TempTokenStore != TempTokenStore(tempTokens) || deps.TokenStore != TokenStore(tokens) {
		t.Fatalf("expected custom stores")
	}
	if deps.Dispatcher != Dispatcher(dispatcher) {
		t.Fatalf("expected custom dispatcher")
	}
	if engine.Config().CallbackPath != "/custom/callback" {
		t.Fatalf("expected resolver output, got %q", engine.Config().CallbackPath)
	}

	_, err = engine.GetToken(context.Background(), "missing")
	if err == nil || !mapperCalled {
		t.Fatalf("expected custom error mapper to run, got %v", err)
	}
}

func TestNewEngine_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"cluestr_app_id": "from-config",
		"connect_path":   "/config/connect",
		"hook_timeout":   5 * time.Second,
	}})
	runtime := testConfig(newTestHooks(&hookRecorder{}))
	runtime.CluestrAppID = "from-runtime"
	runtime.ConnectPath = ""
	runtime.HookTimeout = 0

	engine, err := NewEngine(runtime, WithConfigProvider(provider), WithLogger(newCaptureLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	cfg := engine.Config()
	if cfg.CluestrAppID != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.CluestrAppID)
	}
	if cfg.ConnectPath != "/config/connect" {
		t.Fatalf("expected config layer connect path, got %q", cfg.ConnectPath)
	}
	if cfg.HookTimeout != 5*time.Second {
		t.Fatalf("expected config layer hook timeout, got %s", cfg.HookTimeout)
	}
}

func TestNewEngine_MapsConfigProviderErrors(t *testing.T) {
	_, err := NewEngine(testConfig(newTestHooks(&hookRecorder{})), WithConfigProvider(failingConfigProvider{}))
	if err == nil {
		t.Fatalf("expected config provider error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
}

func TestNewEngine_BuildsStoresFromFactory(t *testing.T) {
	stores := NewMemoryStores()
	factory := &recordingStoreFactory{stores: stores}
	engine, err := NewEngine(testConfig(newTestHooks(&hookRecorder{})),
		WithPersistenceClient("client"),
		WithRepositoryFactory(factory),
		WithLogger(newCaptureLogger()),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if factory.client != "client" {
		t.Fatalf("expected persistence client to reach the factory, got %#v", factory.client)
	}
	if engine.Dependencies().TokenStore != TokenStore(stores.Tokens) {
		t.Fatalf("expected factory token store")
	}
}

type recordingStoreFactory struct {
	stores MemoryStores
	client any
}

func (f *recordingStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	return f.stores, nil
}
