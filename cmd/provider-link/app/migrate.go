package app

import (
	"context"

	linkmigrations "github.com/goliatone/go-provider-link/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func (rt *runtime) migrate(ctx context.Context) error {
	client, dialect, err := openDatabase(rt.dbConfig())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	rt.logger.Info("applying migrations", "dialect", dialect)
	return linkmigrations.Apply(ctx, client, dialect)
}
