package hubs

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func NewHubListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved hubs",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "URL", "User"})
			for _, item := range DefaultHubManager.List() {
				t.AppendRow(table.Row{item.Name, item.URL, item.User})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}
