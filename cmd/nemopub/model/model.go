package model

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"kubegems.io/nemopub/cmd/nemopub/hubs"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/version"
)

// InsecureSkipVerify is set by the root --insecure flag.
var InsecureSkipVerify = false

func NewNemopubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "nemopub",
		Short:   "Publish NeMo ASR checkpoints to a model hub",
		Version: version.Get().String(),
	}
	cmd.AddCommand(NewPublishCmd())
	cmd.AddCommand(NewCardCmd())
	cmd.AddCommand(NewCreateCmd())
	return cmd
}

// BaseContext carries a stdr logger; DEBUG=1 adds caller info and verbose logs.
func BaseContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	logger := log.New(os.Stderr, "", log.LstdFlags)
	opts := stdr.Options{}
	if os.Getenv("DEBUG") == "1" {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
		opts.LogCaller = stdr.All
		stdr.SetVerbosity(1)
	}
	ctx = logr.NewContext(ctx, stdr.NewWithOptions(logger, opts))
	return ctx, cancel
}

// ResolveConfig layers defaults, the config file, NEMOPUB_* env and the changed flags of cmd.
// The setters adjust defaults before any layer is read.
func ResolveConfig(cmd *cobra.Command, setters ...func(v *viper.Viper)) (config.RunConfig, error) {
	v := config.NewViper()
	for _, set := range setters {
		set(v)
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.RunConfig{}, err
	}
	if err := config.ReadConfigFile(v); err != nil {
		return config.RunConfig{}, err
	}
	return config.Resolve(v, hubs.DefaultHubManager.TokenFor)
}
