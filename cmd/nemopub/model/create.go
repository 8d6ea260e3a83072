package model

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/hub"
	"kubegems.io/nemopub/pkg/types"
)

func NewCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [account/name]",
		Short: "Create the hosting repository without publishing",
		Example: `
  # repository named after the checkpoint
  nemopub create --model-path ./my_model.nemo --organization acme --on-repo-exists abort

  nemopub create acme/my_model
		`,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()

			var (
				ref types.RepoRef
				err error
			)
			if len(args) == 1 {
				if ref, err = types.ParseRepoRef(args[0]); err != nil {
					return err
				}
			}
			cfg, err := ResolveConfig(cmd, func(v *viper.Viper) {
				// create never reads the checkpoint, the argument names the repository
				if ref.Name != "" {
					v.SetDefault(config.KeyModelPath, ref.Name)
				}
			})
			if err != nil {
				return err
			}
			switch {
			case ref.Name == "":
				ref = cfg.Repository()
			case ref.Account == "":
				ref.Account = cfg.AccountName
			}

			client := hub.NewClient(cfg.Endpoint, cfg.Token)
			if InsecureSkipVerify {
				client.HTTP = hub.InsecureHTTPClient()
			}
			created, err := hub.Provision(ctx, client, ref, cfg.Private, cfg.OnRepoExists)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", client.RepositoryURL(ref))
			}
			return nil
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}
