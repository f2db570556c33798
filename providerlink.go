// Package providerlink links host application accounts to third-party
// provider accounts through a two-phase connect/callback handshake.
//
// The handshake runtime lives in core; this package re-exports the types a
// host needs and wires the command/query facade.
package providerlink

import "github.com/goliatone/go-provider-link/core"

type Config = core.Config

type Option = core.Option

type Engine = core.Engine

type EngineDependencies = core.EngineDependencies

type Hooks = core.Hooks
type HookFuncs = core.HookFuncs
type TempTokenFinder = core.TempTokenFinder
type TempTokenStore = core.TempTokenStore
type TokenStore = core.TokenStore
type Dispatcher = core.Dispatcher

type Query = core.Query
type TempToken = core.TempToken
type Token = core.Token
type AuthResult = core.AuthResult
type UploadTask = core.UploadTask

type ConnectResult = core.ConnectResult
type CallbackCompletion = core.CallbackCompletion

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithTempTokenStore    = core.WithTempTokenStore
	WithTokenStore        = core.WithTokenStore
	WithDispatcher        = core.WithDispatcher
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// ValidateConfig reports the first missing hook, then the first missing
// parameter.
func ValidateConfig(cfg Config) error {
	return core.ValidateConfig(cfg)
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	return core.NewEngine(cfg, opts...)
}
