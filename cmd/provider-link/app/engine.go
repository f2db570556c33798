package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	persistence "github.com/goliatone/go-persistence-bun"
	providerlink "github.com/goliatone/go-provider-link"
	"github.com/goliatone/go-provider-link/adapters/gocommand"
	"github.com/goliatone/go-provider-link/adapters/gojob"
	linkprometheus "github.com/goliatone/go-provider-link/adapters/prometheus"
	"github.com/goliatone/go-provider-link/core"
	redisstore "github.com/goliatone/go-provider-link/store/redis"
	sqlstore "github.com/goliatone/go-provider-link/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	flagDispatcher      = "dispatcher"
	flagQueueVisibility = "queue-visibility"
	flagTaskTimeout     = "task-timeout"

	dispatcherInline = "inline"
	dispatcherGoJob  = "gojob"
)

// linkRuntime is a fully wired engine plus everything that has to be
// released when the process stops.
type linkRuntime struct {
	engine   *core.Engine
	facade   *providerlink.Facade
	registry *prometheus.Registry
	worker   *gojob.Worker
	closers  []func() error
}

func addEngineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String(flagDispatcher, dispatcherInline, "Upload dispatcher: inline or gojob")
	flags.Duration(flagQueueVisibility, 2*time.Minute, "Lease held on a gojob delivery before redis hands it out again")
	flags.Duration(flagTaskTimeout, 30*time.Second, "Queue worker timeout per task")
}

func (rt *runtime) buildEngine(ctx context.Context) (*linkRuntime, error) {
	out := &linkRuntime{registry: prometheus.NewRegistry()}
	out.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hooks, err := providerlink.DefaultHookPacks(rt.logger).Resolve(rt.v.GetString(flagHooks))
	if err != nil {
		return nil, err
	}

	client, _, err := openDatabase(rt.dbConfig())
	if err != nil {
		return nil, err
	}
	out.closers = append(out.closers, client.Close)

	factory, err := rt.repositoryFactory(client)
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	opts := []core.Option{
		core.WithLogger(rt.logger),
		core.WithLoggerProvider(rt.logger),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithConfigProvider(core.NewCfgxConfigProvider(rt.loader)),
		core.WithMetricsRecorder(linkprometheus.NewRecorder(out.registry)),
	}

	var redisStore *redisstore.TempTokenStore
	if addr := rt.v.GetString(flagRedisAddr); addr != "" {
		redisStore, err = redisstore.Open(ctx, addr, redisstore.WithKeyPrefix(rt.v.GetString(flagRedisPfx)))
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		out.closers = append(out.closers, redisStore.Close)
		opts = append(opts, core.WithTempTokenStore(redisStore))
	}

	switch dispatcher := rt.v.GetString(flagDispatcher); dispatcher {
	case "", dispatcherInline:
	case dispatcherGoJob:
		if redisStore == nil {
			_ = out.Close()
			return nil, fmt.Errorf("dispatcher %q requires --%s", dispatcher, flagRedisAddr)
		}
		q, err := gojob.NewRedisQueue(redisStore.Client(), gojob.RedisQueueConfig{
			QueueName:         rt.v.GetString(flagRedisPfx) + ":uploads",
			VisibilityTimeout: rt.v.GetDuration(flagQueueVisibility),
		})
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		w, err := gojob.NewWorker(q, hooks.QueueWorker,
			gojob.WithLogger(rt.logger.GetLogger("worker")),
			gojob.WithHooks(gojob.NewLoggingHook(rt.logger.GetLogger("worker"))),
			gojob.WithTaskTimeout(rt.v.GetDuration(flagTaskTimeout)),
		)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out.worker = w
		opts = append(opts, core.WithDispatcher(gojob.NewDispatcher(q)))
	default:
		_ = out.Close()
		return nil, fmt.Errorf("unknown dispatcher %q", dispatcher)
	}

	cfg := providerlink.DefaultConfig()
	cfg.Hooks = hooks
	engine, err := providerlink.NewEngine(cfg, opts...)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.engine = engine

	facade, err := providerlink.NewFacade(engine)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.facade = facade
	return out, nil
}

func (rt *runtime) repositoryFactory(client *persistence.Client) (*sqlstore.RepositoryFactory, error) {
	factory := sqlstore.NewRepositoryFactory()
	if ttl := rt.v.GetDuration(flagCacheTTL); ttl > 0 {
		cacheCfg := repositorycache.DefaultConfig()
		cacheCfg.TTL = ttl
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return nil, fmt.Errorf("token cache: %w", err)
		}
		factory.UseTokenCache(cacheService)
	}
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

// registerCommands exposes the facade on the go-command dispatcher and
// mirrors its commands into a go-job queue registry.
func (l *linkRuntime) registerCommands() (func(), error) {
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", jobqueuecommand.NewRegistry()); err != nil {
		return nil, err
	}
	subs, err := gocommand.RegisterFacade(adapter, l.facade)
	if err != nil {
		return nil, err
	}
	release := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
	if err := adapter.Initialize(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (l *linkRuntime) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
