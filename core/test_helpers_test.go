package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const testAccessGrant = "dqzknr54dzgd6f5"

type hookRecorder struct {
	mu         sync.Mutex
	authInputs []map[string]any
	updates    []map[string]any
	tasks      []UploadTask
}

func (r *hookRecorder) recordAuth(data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authInputs = append(r.authInputs, copyAnyMap(data))
}

func (r *hookRecorder) recordUpdate(data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, copyAnyMap(data))
}

func (r *hookRecorder) recordTask(task UploadTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

func (r *hookRecorder) taskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// newTestHooks mirrors a minimal provider: initAccount stores the access
// grant, the lookup matches on it and auth data derives from it.
func newTestHooks(rec *hookRecorder) HookFuncs {
	return HookFuncs{
		InitAccountFn: func(context.Context, *http.Request, http.ResponseWriter) (map[string]any, error) {
			return map[string]any{"accessGrant": testAccessGrant}, nil
		},
		ConnectAccountRetrieveTempTokenFn: func(ctx context.Context, _ *http.Request, _ http.ResponseWriter, finder TempTokenFinder) (TempToken, error) {
			return finder.FindOne(ctx, Query{"hook_data.accessGrant": testAccessGrant})
		},
		ConnectAccountRetrieveAuthDataFn: func(_ context.Context, _ *http.Request, _ http.ResponseWriter, hookData map[string]any) (AuthResult, error) {
			rec.recordAuth(hookData)
			return AuthResult{
				LinkageData: map[string]any{"accessToken": stringParam(hookData, "accessGrant") + "_accessToken"},
				TargetURL:   "http://myprovider.example.org/config",
			}, nil
		},
		UpdateAccountFn: func(_ context.Context, linkageData map[string]any) (map[string]any, error) {
			rec.recordUpdate(linkageData)
			return nil, nil
		},
		QueueWorkerFn: func(_ context.Context, task UploadTask) error {
			rec.recordTask(task)
			return nil
		},
	}
}

func testConfig(hooks Hooks) Config {
	cfg := DefaultConfig()
	cfg.Hooks = hooks
	cfg.CluestrAppID = "appId"
	cfg.CluestrAppSecret = "appSecret"
	cfg.ConnectURL = "http://localhost:1337/init/connect"
	return cfg
}

type testEngine struct {
	engine     *Engine
	stores     MemoryStores
	dispatcher *InlineDispatcher
	logger     *captureLogger
	metrics    *captureMetricsRecorder
}

func newTestEngine(t *testing.T, hooks HookFuncs, opts ...Option) testEngine {
	t.Helper()
	stores := NewMemoryStores()
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	dispatcher := NewInlineDispatcher(hooks.QueueWorker, 0, logger)
	base := []Option{
		WithRepositoryFactory(stores),
		WithDispatcher(dispatcher),
		WithLogger(logger),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithMetricsRecorder(metrics),
	}
	engine, err := NewEngine(testConfig(hooks), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return testEngine{engine: engine, stores: stores, dispatcher: dispatcher, logger: logger, metrics: metrics}
}

func newPhaseRequest(path string) (*httptest.ResponseRecorder, *http.Request) {
	return httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil)
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type failingDispatcher struct {
	err error
}

func (d failingDispatcher) Enqueue(context.Context, UploadTask) error {
	return d.err
}

type failingTokenStore struct {
	err error
}

func (s failingTokenStore) Create(context.Context, CreateTokenInput) (Token, error) {
	return Token{}, s.err
}

func (s failingTokenStore) Get(context.Context, string) (Token, error) {
	return Token{}, s.err
}

func (s failingTokenStore) FindOne(context.Context, Query) (Token, error) {
	return Token{}, s.err
}
