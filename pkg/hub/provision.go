package hub

import (
	"context"

	"github.com/go-logr/logr"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/types"
)

type RepositoryCreator interface {
	CreateRepository(ctx context.Context, ref types.RepoRef, private bool) (string, error)
}

// Provision creates the repository when asked to. With the warn policy a failed creation is
// logged and the run goes on against the assumed existing repository.
func Provision(ctx context.Context, creator RepositoryCreator, ref types.RepoRef, private bool, policy config.RepoExistsPolicy) (bool, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repository", ref.String())

	url, err := creator.CreateRepository(ctx, ref, private)
	if err != nil {
		if policy == config.RepoExistsAbort {
			return false, err
		}
		log.Error(err, "repository creation failed, likely already exists")
		return false, nil
	}
	log.Info("repository created", "url", url, "private", private)
	return true, nil
}
