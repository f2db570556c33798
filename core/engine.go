package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Engine runs the connect and callback phases of a link attempt. It holds no
// per-attempt state; everything that crosses phases lives in the stores.
type Engine struct {
	config            Config
	hooks             Hooks
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	tempTokens        TempTokenStore
	tokens            TokenStore
	dispatcher        Dispatcher
	clock             func() time.Time
}

type EngineDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	TempTokenStore    TempTokenStore
	TokenStore        TokenStore
	Dispatcher        Dispatcher
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(loggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(loggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = linkErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	// Missing hooks are reported before any config source is read.
	if name := firstMissingHook(cfg.Hooks); name != "" {
		return nil, MissingHandlerError(name)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig.Hooks = cfg.Hooks
	finalConfig = finalConfig.withDefaults()
	if err := ValidateConfig(finalConfig); err != nil {
		return nil, err
	}

	if (builder.tempTokenStore == nil || builder.tokenStore == nil) && builder.repositoryFactory != nil {
		stores, buildErr := resolveStoreProvider(builder.repositoryFactory, builder.persistenceClient)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		if stores != nil {
			if builder.tempTokenStore == nil {
				builder.tempTokenStore = stores.TempTokenStore()
			}
			if builder.tokenStore == nil {
				builder.tokenStore = stores.TokenStore()
			}
		}
	}
	if builder.tempTokenStore == nil || builder.tokenStore == nil {
		memory := NewMemoryStores()
		if builder.tempTokenStore == nil {
			builder.tempTokenStore = memory.TempTokens
		}
		if builder.tokenStore == nil {
			builder.tokenStore = memory.Tokens
		}
		logger.Warn("no persistent store configured, link state is kept in memory")
	}
	if builder.dispatcher == nil {
		builder.dispatcher = NewInlineDispatcher(cfg.Hooks.QueueWorker, finalConfig.HookTimeout, logger)
	}

	return &Engine{
		config:            finalConfig,
		hooks:             cfg.Hooks,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		tempTokens:        builder.tempTokenStore,
		tokens:            builder.tokenStore,
		dispatcher:        builder.dispatcher,
		clock:             builder.clock,
	}, nil
}

func resolveStoreProvider(factory any, persistenceClient any) (StoreProvider, error) {
	switch typed := factory.(type) {
	case RepositoryStoreFactory:
		return typed.BuildStores(persistenceClient)
	case StoreProvider:
		return typed, nil
	default:
		return nil, nil
	}
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Dependencies() EngineDependencies {
	if e == nil {
		return EngineDependencies{}
	}
	return EngineDependencies{
		Logger:            e.logger,
		LoggerProvider:    e.loggerProvider,
		MetricsRecorder:   e.metricsRecorder,
		ErrorMapper:       e.errorMapper,
		PersistenceClient: e.persistenceClient,
		TempTokenStore:    e.tempTokens,
		TokenStore:        e.tokens,
		Dispatcher:        e.dispatcher,
	}
}

// Connect starts a link attempt for the request's `code` parameter.
func (e *Engine) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) (result ConnectResult, err error) {
	startedAt := e.now()
	code := correlationCode(r)
	fields := map[string]any{"correlation_code": code}
	defer func() {
		fields["state"] = string(result.State)
		fields["responded"] = result.Responded
		e.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	if code == "" {
		result.State = AttemptStateFailed
		return result, MissingCodeError("connect")
	}

	tracker := newTrackingWriter(w)
	defer func() {
		result.Responded = tracker.close()
	}()

	hookData, hookErr := callHook(ctx, e.config.HookTimeout, HookInitAccount, func(hookCtx context.Context) (map[string]any, error) {
		return e.hooks.InitAccount(hookCtx, r.WithContext(hookCtx), tracker)
	})
	if hookErr != nil {
		fields["hook"] = HookInitAccount
		result.State = AttemptStateFailed
		return result, HookError(HookInitAccount, hookErr)
	}

	token, createErr := e.tempTokens.Create(ctx, CreateTempTokenInput{
		CorrelationCode: code,
		HookData:        hookData,
		TTL:             e.config.TempTokenTTL,
	})
	if createErr != nil {
		result.State = AttemptStateFailed
		if errors.Is(createErr, ErrDuplicateCorrelationCode) {
			return result, attemptConflictError(code, createErr)
		}
		return result, PersistenceError("create temp token", createErr)
	}

	result.TempToken = token
	result.State = AttemptStateInitiated
	return result, nil
}

// Callback completes the attempt the request belongs to. The TempToken is
// consumed before the Token is stored, so of several callbacks racing on one
// attempt only the first to consume it links; the others fail lookup. A
// dispatch failure is logged only.
func (e *Engine) Callback(ctx context.Context, w http.ResponseWriter, r *http.Request) (completion CallbackCompletion, err error) {
	startedAt := e.now()
	code := correlationCode(r)
	fields := map[string]any{"correlation_code": code}
	defer func() {
		fields["state"] = string(completion.State)
		fields["responded"] = completion.Responded
		fields["dispatched"] = completion.Dispatched
		e.observeOperation(ctx, startedAt, "callback", err, fields)
	}()

	if code == "" {
		completion.State = AttemptStateFailed
		return completion, MissingCodeError("callback")
	}
	completion.State = AttemptStateCallbackReceived

	tracker := newTrackingWriter(w)
	defer func() {
		completion.Responded = tracker.close()
	}()
	fail := func(hook string, failure error) (CallbackCompletion, error) {
		if hook != "" {
			fields["hook"] = hook
		}
		fields["failed_after"] = string(completion.State)
		completion.State = AttemptStateFailed
		return completion, failure
	}

	finder := readOnlyFinder{store: e.tempTokens}
	tempToken, lookupErr := callHook(ctx, e.config.HookTimeout, HookConnectAccountRetrieveTempToken, func(hookCtx context.Context) (TempToken, error) {
		return e.hooks.ConnectAccountRetrieveTempToken(hookCtx, r.WithContext(hookCtx), tracker, finder)
	})
	switch {
	case lookupErr != nil && errors.Is(lookupErr, ErrTempTokenNotFound):
		return fail(HookConnectAccountRetrieveTempToken, LookupNotFoundError(code))
	case lookupErr != nil:
		return fail(HookConnectAccountRetrieveTempToken, HookError(HookConnectAccountRetrieveTempToken, lookupErr))
	case tempToken.IsZero(), tempToken.Expired(e.now()):
		return fail(HookConnectAccountRetrieveTempToken, LookupNotFoundError(code))
	}
	completion.TempToken = tempToken
	fields["temp_token_id"] = tempToken.ID

	auth, authErr := callHook(ctx, e.config.HookTimeout, HookConnectAccountRetrieveAuthDatas, func(hookCtx context.Context) (AuthResult, error) {
		return e.hooks.ConnectAccountRetrieveAuthData(hookCtx, r.WithContext(hookCtx), tracker, copyAnyMap(tempToken.HookData))
	})
	if authErr != nil {
		return fail(HookConnectAccountRetrieveAuthDatas, HookError(HookConnectAccountRetrieveAuthDatas, authErr))
	}
	completion.State = AttemptStateAuthDataResolved

	linkageData := copyAnyMap(auth.LinkageData)
	extra, updateErr := callHook(ctx, e.config.HookTimeout, HookUpdateAccount, func(hookCtx context.Context) (map[string]any, error) {
		return e.hooks.UpdateAccount(hookCtx, copyAnyMap(linkageData))
	})
	if updateErr != nil {
		return fail(HookUpdateAccount, HookError(HookUpdateAccount, updateErr))
	}
	for key, value := range extra {
		linkageData[key] = copyAnyValue(value)
	}
	completion.State = AttemptStateAccountUpdated

	if consumeErr := e.tempTokens.Consume(ctx, tempToken.ID); consumeErr != nil {
		if errors.Is(consumeErr, ErrTempTokenNotFound) {
			return fail("", LookupNotFoundError(code))
		}
		return fail("", PersistenceError("consume temp token", consumeErr))
	}

	token, createErr := e.tokens.Create(ctx, CreateTokenInput{
		CorrelationCode: tempToken.CorrelationCode,
		LinkageData:     linkageData,
		TargetURL:       strings.TrimSpace(auth.TargetURL),
	})
	if createErr != nil {
		return fail("", PersistenceError("create token", createErr))
	}
	completion.Token = token
	completion.State = AttemptStateLinked
	completion.RedirectURL = e.config.ConnectURL
	fields["token_id"] = token.ID
	fields["linkage_data"] = RedactLinkData(linkageData)

	if dispatchErr := e.dispatcher.Enqueue(ctx, e.uploadTask(token)); dispatchErr != nil {
		e.logError(ctx, "upload dispatch failed", map[string]any{
			"token_id": token.ID,
			"error":    dispatchErr.Error(),
		})
		return completion, nil
	}
	completion.Dispatched = true
	completion.State = AttemptStateDispatched
	return completion, nil
}

// PurgeExpired removes TempTokens whose expiry is at or before now.
func (e *Engine) PurgeExpired(ctx context.Context) (purged int, err error) {
	startedAt := e.now()
	fields := map[string]any{}
	defer func() {
		fields["purged"] = purged
		e.observeOperation(ctx, startedAt, "purge_expired", err, fields)
	}()
	purged, err = e.tempTokens.PurgeExpired(ctx, e.now())
	if err != nil {
		return 0, PersistenceError("purge temp tokens", err)
	}
	return purged, nil
}

// FindToken looks up a stored Token by predicate.
func (e *Engine) FindToken(ctx context.Context, query Query) (Token, error) {
	token, err := e.tokens.FindOne(ctx, query)
	if err != nil {
		return Token{}, e.mapError(err)
	}
	return token, nil
}

func (e *Engine) GetToken(ctx context.Context, id string) (Token, error) {
	token, err := e.tokens.Get(ctx, id)
	if err != nil {
		return Token{}, e.mapError(err)
	}
	return token, nil
}

// Redispatch enqueues a fresh UploadTask for an already linked Token.
// Unlike the callback phase, a dispatch failure is returned.
func (e *Engine) Redispatch(ctx context.Context, tokenID string) (task UploadTask, err error) {
	startedAt := e.now()
	fields := map[string]any{"token_id": tokenID}
	defer func() {
		e.observeOperation(ctx, startedAt, "redispatch", err, fields)
	}()
	token, err := e.tokens.Get(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return UploadTask{}, e.mapError(err)
	}
	task = e.uploadTask(token)
	if err := e.dispatcher.Enqueue(ctx, task); err != nil {
		return UploadTask{}, goerrors.Wrap(err, goerrors.CategoryExternal, "core: upload dispatch failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(LinkErrorDispatchFailed)
	}
	return task, nil
}

func (e *Engine) uploadTask(token Token) UploadTask {
	return UploadTask{
		TokenID:         token.ID,
		CorrelationCode: token.CorrelationCode,
		AppID:           e.config.CluestrAppID,
		LinkageData:     token.LinkageData,
		TargetURL:       token.TargetURL,
		CreatedAt:       e.now(),
	}
}

func (e *Engine) mapError(err error) error {
	return mapBuildError(e.errorMapper, err)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock().UTC()
}

func correlationCode(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("code"))
}
