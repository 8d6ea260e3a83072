package model

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/progress"
	"kubegems.io/nemopub/pkg/types"
	"kubegems.io/nemopub/pkg/uploader"
)

func NewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a checkpoint with its model card",
		Example: `
  nemopub publish --model-path ./my_model.nemo --organization acme --tags custom --datasets "test set" --create-new-repo

  # RNNT model from object storage
  nemopub publish --model-path s3://models/asr/conformer.nemo --model-type RNNT --s3-endpoint http://minio:9000
		`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()

			cfg, err := ResolveConfig(cmd)
			if err != nil {
				return err
			}
			u := uploader.New(cfg, uploader.Options{
				InsecureSkipTLS: InsecureSkipVerify,
				Progress:        cmd.ErrOrStderr(),
			})
			result, err := u.Run(ctx, cfg)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), cfg, result)
			return nil
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func printResult(w io.Writer, cfg config.RunConfig, result *uploader.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendRows([]table.Row{
		{"Repository", cfg.Endpoint + "/" + result.Repository},
		{"Model", fmt.Sprintf("%s (%s)", result.ModelName, result.ModelKind.Short())},
		{"Digest", result.Digest},
		{"Created", result.Created},
		{"Commit", result.Commit},
		{"Pushed", result.Pushed},
		{"Files", describeFiles(result.Files)},
	})
	t.Render()
}

func describeFiles(files []types.Descriptor) string {
	lines := make([]string, 0, len(files))
	for _, file := range files {
		line := fmt.Sprintf("%s %s", file.Name, progress.HumanSize(float64(file.Size)))
		if file.LFS {
			line += " (lfs)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
