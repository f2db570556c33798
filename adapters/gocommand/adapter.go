// Package gocommand exposes the link commands and queries on the
// go-command dispatcher and registry.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	providerlink "github.com/goliatone/go-provider-link"
	linkcommand "github.com/goliatone/go-provider-link/command"
	"github.com/goliatone/go-provider-link/core"
	linkquery "github.com/goliatone/go-provider-link/query"
)

var errNoRegistry = fmt.Errorf("gocommand: registry is not configured")

// RegistryAdapter owns the go-command registry that handlers are recorded
// in. Resolvers added before Initialize see every registered handler.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue
// registry so they can also run from a job queue.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// messageType returns the Type() of T's zero value. Handlers keyed on an
// empty type would collide, so they are rejected.
func messageType[T any]() (string, error) {
	var zero T
	msg, ok := any(zero).(command.Message)
	if !ok {
		return "", fmt.Errorf("gocommand: %T must implement Type() string", zero)
	}
	name := strings.TrimSpace(msg.Type())
	if name == "" {
		return "", fmt.Errorf("gocommand: %T has an empty message type", zero)
	}
	return name, nil
}

// RegisterAndSubscribe subscribes cmd on the dispatcher and records it in
// the registry. The subscription is released if registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return subscribeRegistered[T](adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return subscribeRegistered[T](adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	})
}

func subscribeRegistered[T any](
	adapter *RegistryAdapter,
	handler any,
	subscribe func() commanddispatcher.Subscription,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errNoRegistry
	}
	if _, err := messageType[T](); err != nil {
		return nil, err
	}
	subscription := subscribe()
	if err := adapter.register(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RegisterFacade registers and subscribes every link command and query, so
// callers can use Dispatch and Query with the link message types. On error
// the subscriptions made so far are released.
func RegisterFacade(
	adapter *RegistryAdapter,
	facade *providerlink.Facade,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()
	subscriptions := []commanddispatcher.Subscription{}
	release := func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}
	register := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[linkcommand.PurgeExpiredMessage](adapter, commands.PurgeExpired, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[linkcommand.ValidateConfigMessage](adapter, commands.ValidateConfig, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[linkcommand.RedispatchUploadMessage](adapter, commands.RedispatchUpload, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[linkquery.GetTokenMessage, core.Token](adapter, queries.GetToken, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[linkquery.FindTokenMessage, core.Token](adapter, queries.FindToken, runnerOpts...)
		},
	}
	for _, fn := range register {
		sub, err := fn()
		if err != nil {
			release()
			return nil, err
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}
