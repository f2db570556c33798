package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Hook names as they appear in configuration errors.
const (
	HookInitAccount                     = "initAccount"
	HookConnectAccountRetrieveTempToken = "connectAccountRetrieveTempToken"
	HookConnectAccountRetrieveAuthDatas = "connectAccountRetrieveAuthDatas"
	HookUpdateAccount                   = "updateAccount"
	HookQueueWorker                     = "queueWorker"
)

// RequiredHooks lists hook names in validation order.
var RequiredHooks = []string{
	HookInitAccount,
	HookConnectAccountRetrieveTempToken,
	HookConnectAccountRetrieveAuthDatas,
	HookUpdateAccount,
	HookQueueWorker,
}

// Hooks is the capability set a host supplies to the engine.
//
// Hooks receiving the ResponseWriter may answer the request themselves; the
// engine then sends no response of its own for that phase.
type Hooks interface {
	// InitAccount starts a link attempt and returns the data to persist on
	// the attempt's TempToken.
	InitAccount(ctx context.Context, r *http.Request, w http.ResponseWriter) (map[string]any, error)
	// ConnectAccountRetrieveTempToken resolves the attempt the callback
	// belongs to. Returning ErrTempTokenNotFound (or a zero TempToken)
	// reports an unknown or expired attempt.
	ConnectAccountRetrieveTempToken(ctx context.Context, r *http.Request, w http.ResponseWriter, finder TempTokenFinder) (TempToken, error)
	// ConnectAccountRetrieveAuthData receives the persisted hook data and
	// resolves the final linkage data.
	ConnectAccountRetrieveAuthData(ctx context.Context, r *http.Request, w http.ResponseWriter, hookData map[string]any) (AuthResult, error)
	// UpdateAccount applies the link to the host account system. Returned
	// keys are merged over the linkage data before the Token is stored.
	UpdateAccount(ctx context.Context, linkageData map[string]any) (map[string]any, error)
	// QueueWorker performs post-link background work for a dispatched task.
	QueueWorker(ctx context.Context, task UploadTask) error
}

// HookPresence is implemented by Hooks values that can be partially
// populated, so validation can name the missing hook.
type HookPresence interface {
	MissingHooks() []string
}

type InitAccountFunc func(ctx context.Context, r *http.Request, w http.ResponseWriter) (map[string]any, error)

type RetrieveTempTokenFunc func(ctx context.Context, r *http.Request, w http.ResponseWriter, finder TempTokenFinder) (TempToken, error)

type RetrieveAuthDataFunc func(ctx context.Context, r *http.Request, w http.ResponseWriter, hookData map[string]any) (AuthResult, error)

type UpdateAccountFunc func(ctx context.Context, linkageData map[string]any) (map[string]any, error)

type QueueWorkerFunc func(ctx context.Context, task UploadTask) error

// HookFuncs adapts plain functions to Hooks.
type HookFuncs struct {
	InitAccountFn                     InitAccountFunc
	ConnectAccountRetrieveTempTokenFn RetrieveTempTokenFunc
	ConnectAccountRetrieveAuthDataFn  RetrieveAuthDataFunc
	UpdateAccountFn                   UpdateAccountFunc
	QueueWorkerFn                     QueueWorkerFunc
}

func (h HookFuncs) MissingHooks() []string {
	missing := []string{}
	if h.InitAccountFn == nil {
		missing = append(missing, HookInitAccount)
	}
	if h.ConnectAccountRetrieveTempTokenFn == nil {
		missing = append(missing, HookConnectAccountRetrieveTempToken)
	}
	if h.ConnectAccountRetrieveAuthDataFn == nil {
		missing = append(missing, HookConnectAccountRetrieveAuthDatas)
	}
	if h.UpdateAccountFn == nil {
		missing = append(missing, HookUpdateAccount)
	}
	if h.QueueWorkerFn == nil {
		missing = append(missing, HookQueueWorker)
	}
	return missing
}

func (h HookFuncs) InitAccount(ctx context.Context, r *http.Request, w http.ResponseWriter) (map[string]any, error) {
	if h.InitAccountFn == nil {
		return nil, errHookNotConfigured(HookInitAccount)
	}
	return h.InitAccountFn(ctx, r, w)
}

func (h HookFuncs) ConnectAccountRetrieveTempToken(ctx context.Context, r *http.Request, w http.ResponseWriter, finder TempTokenFinder) (TempToken, error) {
	if h.ConnectAccountRetrieveTempTokenFn == nil {
		return TempToken{}, errHookNotConfigured(HookConnectAccountRetrieveTempToken)
	}
	return h.ConnectAccountRetrieveTempTokenFn(ctx, r, w, finder)
}

func (h HookFuncs) ConnectAccountRetrieveAuthData(ctx context.Context, r *http.Request, w http.ResponseWriter, hookData map[string]any) (AuthResult, error) {
	if h.ConnectAccountRetrieveAuthDataFn == nil {
		return AuthResult{}, errHookNotConfigured(HookConnectAccountRetrieveAuthDatas)
	}
	return h.ConnectAccountRetrieveAuthDataFn(ctx, r, w, hookData)
}

func (h HookFuncs) UpdateAccount(ctx context.Context, linkageData map[string]any) (map[string]any, error) {
	if h.UpdateAccountFn == nil {
		return nil, errHookNotConfigured(HookUpdateAccount)
	}
	return h.UpdateAccountFn(ctx, linkageData)
}

func (h HookFuncs) QueueWorker(ctx context.Context, task UploadTask) error {
	if h.QueueWorkerFn == nil {
		return errHookNotConfigured(HookQueueWorker)
	}
	return h.QueueWorkerFn(ctx, task)
}

// TempTokenFinder is the read-only view of the TempToken store handed to
// the lookup hook.
type TempTokenFinder interface {
	FindOne(ctx context.Context, query Query) (TempToken, error)
}

type TempTokenStore interface {
	TempTokenFinder
	Create(ctx context.Context, in CreateTempTokenInput) (TempToken, error)
	Delete(ctx context.Context, id string) error
	// Consume removes the live TempToken with id. Exactly one concurrent
	// caller succeeds; the rest get ErrTempTokenNotFound, as does any caller
	// once the record has expired.
	Consume(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

type TokenStore interface {
	Create(ctx context.Context, in CreateTokenInput) (Token, error)
	Get(ctx context.Context, id string) (Token, error)
	FindOne(ctx context.Context, query Query) (Token, error)
}

// Dispatcher hands an UploadTask to background execution. Enqueue must not
// block on the task itself.
type Dispatcher interface {
	Enqueue(ctx context.Context, task UploadTask) error
}

type StoreProvider interface {
	TempTokenStore() TempTokenStore
	TokenStore() TokenStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// readOnlyFinder keeps hooks from reaching the mutating store methods
// through a type assertion.
type readOnlyFinder struct {
	store TempTokenFinder
}

func (f readOnlyFinder) FindOne(ctx context.Context, query Query) (TempToken, error) {
	token, err := f.store.FindOne(ctx, query)
	if err != nil {
		return TempToken{}, err
	}
	return cloneTempToken(token), nil
}
