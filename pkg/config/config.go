package config

import (
	"os"
	"strings"

	"golang.org/x/exp/slices"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
)

const (
	DefaultEndpoint      = "https://huggingface.co"
	DefaultAccount       = "TUT-SLP-lab"
	DefaultLanguage      = "ja"
	DefaultCommitMessage = "Initial commit!"

	TokenEnv = "HF_TOKEN"
)

// RepoExistsPolicy decides what a failed repository creation does to the run.
type RepoExistsPolicy string

const (
	RepoExistsWarn  RepoExistsPolicy = "warn"
	RepoExistsAbort RepoExistsPolicy = "abort"
)

func ParseRepoExistsPolicy(raw string) (RepoExistsPolicy, error) {
	policy := RepoExistsPolicy(strings.ToLower(strings.TrimSpace(raw)))
	if policy == "" {
		return RepoExistsWarn, nil
	}
	if !slices.Contains([]RepoExistsPolicy{RepoExistsWarn, RepoExistsAbort}, policy) {
		return "", errors.NewConfigInvalidError("on_repo_exists must be one of warn, abort: got " + raw)
	}
	return policy, nil
}

// RunConfig holds every parameter of a single publish run. It is built once by Resolve
// and not modified afterwards.
type RunConfig struct {
	ModelPath     string
	AccountName   string
	ModelKind     types.ModelKind
	Language      string
	Tags          []string
	Datasets      []string
	Token         string
	CommitMessage string
	CreateRepo    bool
	OnRepoExists  RepoExistsPolicy
	Private       bool
	GitUserName   string
	GitUserEmail  string
	Endpoint      string
	WorkDir       string
	KeepWorkDir   bool
	S3            S3Options
}

type S3Options struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

func NewDefaultS3Options() S3Options {
	return S3Options{
		Region:    os.Getenv("AWS_REGION"),
		PathStyle: true,
	}
}

// Repository is the hosting repository id derived from the account and the checkpoint name.
func (c RunConfig) Repository() types.RepoRef {
	return types.RepoRefForModel(c.AccountName, c.ModelPath)
}

func (c RunConfig) ModelName() string {
	return types.ModelNameFromPath(c.ModelPath)
}

// AuthorName and AuthorEmail fall back to the account when no git identity is configured.
func (c RunConfig) AuthorName() string {
	if c.GitUserName != "" {
		return c.GitUserName
	}
	return c.AccountName
}

func (c RunConfig) AuthorEmail() string {
	if c.GitUserEmail != "" {
		return c.GitUserEmail
	}
	return c.AuthorName() + "@users.noreply.huggingface.co"
}

// Validate checks required fields and enum membership only.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return errors.NewConfigInvalidError("model_path is required")
	}
	if c.AccountName == "" {
		return errors.NewConfigInvalidError("organization is required")
	}
	if !slices.Contains(types.ModelKinds, c.ModelKind) {
		return errors.NewUnsupportedModelKindError(string(c.ModelKind))
	}
	if _, err := ParseRepoExistsPolicy(string(c.OnRepoExists)); err != nil {
		return err
	}
	return nil
}
