package hub

import (
	"context"
	stderrors "errors"
	"net/http"

	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
)

const RepoTypeModel = "model"

type createRepoRequest struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Private      bool   `json:"private"`
}

type createRepoResponse struct {
	URL string `json:"url"`
}

// CreateRepository creates a model repository; a repository that already exists is
// reported with errors.ErrCodeRepositoryExists.
func (c *Client) CreateRepository(ctx context.Context, ref types.RepoRef, private bool) (string, error) {
	reqbody := createRepoRequest{
		Type:         RepoTypeModel,
		Name:         ref.Name,
		Organization: ref.Account,
		Private:      private,
	}
	created := createRepoResponse{}
	if _, err := c.request(ctx, http.MethodPost, "/api/repos/create", nil, reqbody, &created); err != nil {
		statuserr := StatusError{}
		if stderrors.As(err, &statuserr) {
			return "", errors.NewRepositoryCreationError(statuserr.StatusCode, ref.String(), statuserr.Message)
		}
		return "", errors.NewRepositoryCreationError(0, ref.String(), "").WithCause(err)
	}
	if created.URL == "" {
		created.URL = c.RepositoryURL(ref)
	}
	return created.URL, nil
}

// RepositoryURL is the web and git url of the repository.
func (c *Client) RepositoryURL(ref types.RepoRef) string {
	return c.Endpoint + "/" + ref.String()
}

type User struct {
	Name     string `json:"name"`
	Fullname string `json:"fullname,omitempty"`
	Email    string `json:"email,omitempty"`
	Type     string `json:"type,omitempty"`
	Orgs     []Org  `json:"orgs,omitempty"`
}

type Org struct {
	Name string `json:"name"`
}

func (c *Client) WhoAmI(ctx context.Context) (*User, error) {
	user := &User{}
	if _, err := c.request(ctx, http.MethodGet, "/api/whoami-v2", nil, nil, user); err != nil {
		statuserr := StatusError{}
		if stderrors.As(err, &statuserr) && statuserr.StatusCode == http.StatusUnauthorized {
			return nil, errors.NewUnauthorizedError(statuserr.Message)
		}
		return nil, err
	}
	return user, nil
}
