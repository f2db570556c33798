// Package app holds the provider-link cobra commands.
package app

import (
	"fmt"
	"log/slog"
	"strings"

	providerlink "github.com/goliatone/go-provider-link"
	"github.com/goliatone/go-provider-link/adapters/gologger"
	"github.com/goliatone/go-provider-link/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagHooks     = "hooks"
	flagDBDriver  = "db-driver"
	flagDBDSN     = "db-dsn"
	flagDBDebug   = "db-debug"
	flagRedisAddr = "redis-addr"
	flagRedisPfx  = "redis-prefix"
	flagCacheTTL  = "token-cache-ttl"
)

// runtime is shared by every subcommand. Values resolve flag > env > file.
type runtime struct {
	v      *viper.Viper
	loader *config.ViperLoader
	logger *gologger.SlogLogger
}

func NewRootCmd() *cobra.Command {
	rt := &runtime{v: viper.New()}

	root := &cobra.Command{
		Use:           "provider-link",
		Short:         "Link host accounts to provider accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String(flagConfig, "", "Config file (yaml, json or toml)")
	flags.String(flagLogLevel, "info", "Log level: debug, info, warn or error")
	flags.String(flagHooks, providerlink.PassthroughHookPack, "Hook pack to run")
	flags.String(flagDBDriver, "sqlite3", "Database driver: sqlite3 or postgres")
	flags.String(flagDBDSN, "file:provider-link.db?cache=shared&_foreign_keys=on", "Database DSN")
	flags.Bool(flagDBDebug, false, "Log SQL queries")
	flags.String(flagRedisAddr, "", "Redis address for temp tokens and the gojob upload queue")
	flags.String(flagRedisPfx, "provider-link", "Redis key prefix")
	flags.Duration(flagCacheTTL, 0, "Cache token reads for this long (0 disables)")

	root.AddCommand(
		newServeCmd(rt),
		newMigrateCmd(rt),
		newPurgeCmd(rt),
		newValidateCmd(rt),
	)
	return root
}

func (rt *runtime) init(cmd *cobra.Command) error {
	if err := rt.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	rt.loader = config.NewViperLoader(
		config.WithViper(rt.v),
		config.WithConfigFile(rt.v.GetString(flagConfig)),
	)
	if err := rt.loader.ReadConfig(); err != nil {
		return err
	}
	level, err := parseLevel(rt.v.GetString(flagLogLevel))
	if err != nil {
		return err
	}
	rt.logger = gologger.NewJSONLogger(level)
	return nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return level, fmt.Errorf("invalid log level %q", value)
	}
	return level, nil
}
