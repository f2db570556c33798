package app

import (
	"context"

	providerlink "github.com/goliatone/go-provider-link"
	linkcommand "github.com/goliatone/go-provider-link/command"
	"github.com/goliatone/go-provider-link/core"
	"github.com/spf13/cobra"
)

func newValidateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the resolved configuration can start an engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rt.resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			validate := linkcommand.NewValidateConfigCommand()
			if err := validate.Execute(cmd.Context(), linkcommand.ValidateConfigMessage{Config: cfg}); err != nil {
				return err
			}
			cmd.Printf("configuration ok (connect %s, callback %s)\n", cfg.ConnectPath, cfg.CallbackPath)
			return nil
		},
	}
}

// resolveConfig merges the loader's values over the defaults and attaches
// the selected hook pack.
func (rt *runtime) resolveConfig(ctx context.Context) (core.Config, error) {
	hooks, err := providerlink.DefaultHookPacks(rt.logger).Resolve(rt.v.GetString(flagHooks))
	if err != nil {
		return core.Config{}, err
	}
	cfg, err := core.NewCfgxConfigProvider(rt.loader).Load(ctx, providerlink.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	cfg.Hooks = hooks
	return cfg, nil
}
