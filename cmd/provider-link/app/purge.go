package app

import (
	"github.com/spf13/cobra"
)

func newPurgeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired temp tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			link, err := rt.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = link.Close() }()

			release, err := link.registerCommands()
			if err != nil {
				return err
			}
			defer release()

			purged, err := dispatchPurge(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("purged %d expired temp tokens\n", purged)
			return nil
		},
	}
	addEngineFlags(cmd)
	return cmd
}
