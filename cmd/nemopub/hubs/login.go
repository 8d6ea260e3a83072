package hubs

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/hub"
)

func NewHubLoginCmd() *cobra.Command {
	name := ""
	cmd := &cobra.Command{
		Use:   "login [endpoint]",
		Short: "Verify a token and save it for an endpoint",
		Example: `
  # read the token from stdin and save it for huggingface.co
  echo $HF_TOKEN | nemopub hub login

  nemopub hub login https://hub.example.com --name internal
		`,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint := config.DefaultEndpoint
			if len(args) == 1 {
				endpoint = args[0]
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "please input token:")
			token, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token = strings.TrimSpace(token)
			if token == "" {
				if err != nil {
					return err
				}
				return fmt.Errorf("empty token")
			}

			user, err := hub.NewClient(endpoint, token).WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			if err := DefaultHubManager.Set(HubDetails{Name: name, URL: endpoint, User: user.Name, Token: token}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", endpoint, user.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the saved hub, defaults to the endpoint")
	return cmd
}
