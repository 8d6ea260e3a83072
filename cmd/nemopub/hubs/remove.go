package hubs

import (
	"github.com/spf13/cobra"
)

func NewHubRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove saved hubs",
		Example: `
  nemopub hub remove https://huggingface.co`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			names := []string{}
			for _, d := range DefaultHubManager.List() {
				names = append(names, d.Name)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := DefaultHubManager.Remove(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
