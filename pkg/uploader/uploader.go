package uploader

import (
	"context"
	"io"
	"os"

	"github.com/go-logr/logr"
	"kubegems.io/nemopub/pkg/card"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/hub"
	"kubegems.io/nemopub/pkg/nemo"
	"kubegems.io/nemopub/pkg/publish"
	"kubegems.io/nemopub/pkg/source"
	"kubegems.io/nemopub/pkg/types"
)

type Stage string

const (
	StageStart                        Stage = "Start"
	StageArgsResolved                 Stage = "ArgsResolved"
	StageModelLoaded                  Stage = "ModelLoaded"
	StageRepoProvisioned              Stage = "RepoProvisioned"
	StageRepoProvisionSkippedOrWarned Stage = "RepoProvisionSkippedOrWarned"
	StageMetadataBuilt                Stage = "MetadataBuilt"
	StagePublished                    Stage = "Published"
	StageDone                         Stage = "Done"
	StageFailed                       Stage = "Failed"
)

type Loader interface {
	Load(ctx context.Context, path string, kind types.ModelKind) (*nemo.Model, error)
}

type LoaderFunc func(ctx context.Context, path string, kind types.ModelKind) (*nemo.Model, error)

func (f LoaderFunc) Load(ctx context.Context, path string, kind types.ModelKind) (*nemo.Model, error) {
	return f(ctx, path, kind)
}

type Publisher interface {
	Publish(ctx context.Context, ref types.RepoRef, saver publish.Saver, readme []byte, message string) (*publish.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, uri string, intodir string) (string, error)
}

// Uploader runs the publish pipeline. Every stage is replaceable.
type Uploader struct {
	Loader    Loader
	Creator   hub.RepositoryCreator
	Publisher Publisher
	Fetcher   Fetcher // only used for remote model paths
}

type Options struct {
	InsecureSkipTLS bool
	Progress        io.Writer
}

// New wires the default stages for cfg: the nemo loader, the hub client and the git publisher.
func New(cfg config.RunConfig, opts Options) *Uploader {
	client := hub.NewClient(cfg.Endpoint, cfg.Token)
	if opts.InsecureSkipTLS {
		client.HTTP = hub.InsecureHTTPClient()
	}
	return &Uploader{
		Loader:  LoaderFunc(nemo.Load),
		Creator: client,
		Publisher: publish.NewPublisher(publish.Options{
			Endpoint:        client.Endpoint,
			Username:        cfg.AccountName,
			Token:           cfg.Token,
			WorkDir:         cfg.WorkDir,
			KeepWorkDir:     cfg.KeepWorkDir,
			AuthorName:      cfg.AuthorName(),
			AuthorEmail:     cfg.AuthorEmail(),
			InsecureSkipTLS: opts.InsecureSkipTLS,
			LFS:             client,
			Progress:        opts.Progress,
		}),
	}
}

type Result struct {
	Repository string             `json:"repository"`
	ModelName  string             `json:"modelName"`
	ModelKind  types.ModelKind    `json:"modelKind"`
	Digest     string             `json:"digest,omitempty"`
	Created    bool               `json:"created"`
	Commit     string             `json:"commit,omitempty"`
	Files      []types.Descriptor `json:"files,omitempty"`
	Pushed     bool               `json:"pushed"`
	Stage      Stage              `json:"stage"`
}

// Run drives a single publish. On error the returned result carries StageFailed.
func (u *Uploader) Run(ctx context.Context, cfg config.RunConfig) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx)
	result := &Result{Stage: StageStart}
	log.Info(string(StageStart), "model", cfg.ModelPath)

	failed := func(err error) (*Result, error) {
		log.Error(err, string(StageFailed), "after", result.Stage)
		result.Stage = StageFailed
		return result, err
	}
	advance := func(stage Stage, kvs ...any) {
		result.Stage = stage
		log.Info(string(stage), kvs...)
	}

	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	ref := cfg.Repository()
	result.Repository, result.ModelName, result.ModelKind = ref.String(), cfg.ModelName(), cfg.ModelKind
	advance(StageArgsResolved, "repository", ref.String(), "kind", cfg.ModelKind, "createRepo", cfg.CreateRepo)

	modelPath := cfg.ModelPath
	if source.IsRemote(modelPath) {
		cachedir, err := os.MkdirTemp("", "nemopub-source-")
		if err != nil {
			return failed(err)
		}
		defer os.RemoveAll(cachedir)
		fetcher := u.Fetcher
		if fetcher == nil {
			s3fetcher, err := source.NewS3Fetcher(ctx, cfg.S3)
			if err != nil {
				return failed(err)
			}
			fetcher = s3fetcher
		}
		if modelPath, err = fetcher.Fetch(ctx, cfg.ModelPath, cachedir); err != nil {
			return failed(err)
		}
	}

	model, err := u.Loader.Load(ctx, modelPath, cfg.ModelKind)
	if err != nil {
		return failed(err)
	}
	result.Digest = model.Digest.String()
	advance(StageModelLoaded, "path", model.Path, "target", model.Config.Target, "size", model.Size)

	if cfg.CreateRepo {
		created, err := hub.Provision(ctx, u.Creator, ref, cfg.Private, cfg.OnRepoExists)
		if err != nil {
			return failed(err)
		}
		result.Created = created
		if created {
			advance(StageRepoProvisioned, "private", cfg.Private)
		} else {
			advance(StageRepoProvisionSkippedOrWarned, "reason", "creation failed")
		}
	} else {
		advance(StageRepoProvisionSkippedOrWarned, "reason", "creation disabled")
	}

	readme, err := card.Render(card.Build(card.Options{
		Language: cfg.Language,
		Tags:     cfg.Tags,
		Datasets: cfg.Datasets,
	}, result.ModelName), ref.String())
	if err != nil {
		return failed(err)
	}
	advance(StageMetadataBuilt, "size", len(readme))

	published, err := u.Publisher.Publish(ctx, ref, model, readme, cfg.CommitMessage)
	if err != nil {
		return failed(err)
	}
	result.Commit, result.Files, result.Pushed = published.Commit, published.Files, published.Pushed
	advance(StagePublished, "commit", published.Commit, "pushed", published.Pushed)

	advance(StageDone, "repository", ref.String())
	return result, nil
}
