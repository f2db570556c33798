package app

import (
	"database/sql"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	linkmigrations "github.com/goliatone/go-provider-link/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// dbConfig satisfies the go-persistence-bun config contract.
type dbConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c dbConfig) GetDebug() bool                { return c.debug }
func (c dbConfig) GetDriver() string             { return c.driver }
func (c dbConfig) GetServer() string             { return c.dsn }
func (c dbConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c dbConfig) GetOtelIdentifier() string     { return "provider-link" }

func (rt *runtime) dbConfig() dbConfig {
	return dbConfig{
		driver: rt.v.GetString(flagDBDriver),
		dsn:    rt.v.GetString(flagDBDSN),
		debug:  rt.v.GetBool(flagDBDebug),
	}
}

// openDatabase returns a persistence client and the schema dialect matching
// the configured driver.
func openDatabase(cfg dbConfig) (*persistence.Client, string, error) {
	dialectName, err := linkmigrations.DialectForDriver(cfg.driver)
	if err != nil {
		return nil, "", err
	}

	var (
		sqlDriver string
		dialect   schema.Dialect
	)
	switch dialectName {
	case linkmigrations.DialectPostgres:
		sqlDriver, dialect = "postgres", pgdialect.New()
	default:
		sqlDriver, dialect = "sqlite3", sqlitedialect.New()
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", sqlDriver, err)
	}
	if dialectName == linkmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("new persistence client: %w", err)
	}
	return client, dialectName, nil
}
