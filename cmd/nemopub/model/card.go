package model

import (
	"github.com/spf13/cobra"
	"kubegems.io/nemopub/pkg/card"
	"kubegems.io/nemopub/pkg/config"
)

func NewCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Render the model card README to stdout",
		Example: `
  nemopub card --model-path ./my_model.nemo --organization acme --language en > README.md
		`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolveConfig(cmd)
			if err != nil {
				return err
			}
			readme, err := card.Render(card.Build(card.Options{
				Language: cfg.Language,
				Tags:     cfg.Tags,
				Datasets: cfg.Datasets,
			}, cfg.ModelName()), cfg.Repository().String())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(readme)
			return err
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}
