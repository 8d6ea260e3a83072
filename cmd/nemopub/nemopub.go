package main

import (
	"crypto/tls"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"kubegems.io/nemopub/cmd/nemopub/hubs"
	"kubegems.io/nemopub/cmd/nemopub/model"
)

const ErrExitCode = 1

func main() {
	if err := NewNemopubCmd().Execute(); err != nil {
		os.Exit(ErrExitCode)
	}
}

func NewNemopubCmd() *cobra.Command {
	cmd := model.NewNemopubCmd()
	cmd.AddCommand(hubs.NewHubCmd())
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if model.InsecureSkipVerify {
			http.DefaultTransport.(*http.Transport).TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		}
	}
	cmd.PersistentFlags().BoolVarP(&model.InsecureSkipVerify, "insecure", "", model.InsecureSkipVerify, "tls insecure skip verify")
	return cmd
}
