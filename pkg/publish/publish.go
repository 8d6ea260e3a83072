package publish

import (
	"context"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"kubegems.io/nemopub/pkg/card"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
)

type Options struct {
	Endpoint        string
	Username        string
	Token           string
	WorkDir         string // empty for a temporary directory
	KeepWorkDir     bool
	AuthorName      string
	AuthorEmail     string
	InsecureSkipTLS bool
	LFS             LFSClient // nil commits files as regular blobs
	LFSThreshold    int64
	Progress        io.Writer
}

// RepositoryURL is the git url of the repository; a local endpoint path is used as is.
func (o Options) RepositoryURL(ref types.RepoRef) string {
	return strings.TrimSuffix(o.Endpoint, "/") + "/" + ref.String()
}

func (o Options) lfsThreshold() int64 {
	if o.LFSThreshold > 0 {
		return o.LFSThreshold
	}
	return DefaultLFSThreshold
}

type Result struct {
	Repository string             `json:"repository"`
	Commit     string             `json:"commit,omitempty"`
	Files      []types.Descriptor `json:"files,omitempty"`
	Pushed     bool               `json:"pushed"`
}

// Saver writes a checkpoint into a directory and returns the written path.
type Saver interface {
	SaveTo(dir string) (string, error)
}

type Publisher struct {
	Options Options
}

func NewPublisher(opts Options) *Publisher {
	return &Publisher{Options: opts}
}

// Publish saves the checkpoint and the readme into the repository and pushes them in one commit.
// The working copy is released on every path.
func (p *Publisher) Publish(ctx context.Context, ref types.RepoRef, saver Saver, readme []byte, message string) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repository", ref.String())

	tx, err := Begin(ctx, ref, p.Options)
	if err != nil {
		return nil, errors.NewPublishError(ref.String(), err)
	}
	defer func() {
		if err := tx.Close(); err != nil {
			log.Error(err, "release working copy", "dir", tx.Dir())
		}
	}()

	saved, err := saver.SaveTo(tx.Dir())
	if err != nil {
		return nil, errors.NewPublishError(ref.String(), err)
	}
	if err := tx.Track(saved); err != nil {
		return nil, errors.NewPublishError(ref.String(), err)
	}
	log.V(1).Info("checkpoint saved", "path", saved)

	if err := tx.WriteFile(card.ReadmeFileName, readme); err != nil {
		return nil, errors.NewPublishError(ref.String(), err)
	}
	if p.Options.LFS != nil {
		if err := tx.EnsureLFSTracking(LFSTrackedPatterns...); err != nil {
			return nil, errors.NewPublishError(ref.String(), err)
		}
	}

	result, err := tx.Commit(ctx, message)
	if err != nil {
		return nil, errors.NewPublishError(ref.String(), err)
	}
	return result, nil
}
