package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"kubegems.io/nemopub/pkg/types"
)

const EnvPrefix = "NEMOPUB"

// config keys
const (
	KeyConfig        = "config"
	KeyModelPath     = "model_path"
	KeyOrganization  = "organization"
	KeyUserName      = "user_name"
	KeyModelType     = "model_type"
	KeyTags          = "tags"
	KeyDatasets      = "datasets"
	KeyLanguage      = "language"
	KeyToken         = "token"
	KeyCommitMessage = "commit_message"
	KeyCreateNewRepo = "create_new_repo"
	KeyOnRepoExists  = "on_repo_exists"
	KeyPrivate       = "private"
	KeyGitUserName   = "git_user_name"
	KeyGitUserEmail  = "git_user_email"
	KeyEndpoint      = "endpoint"
	KeyWorkDir       = "work_dir"
	KeyKeepWorkDir   = "keep_work_dir"
	KeyS3Endpoint    = "s3.endpoint"
	KeyS3Region      = "s3.region"
	KeyS3AccessKey   = "s3.access_key"
	KeyS3SecretKey   = "s3.secret_key"
	KeyS3PathStyle   = "s3.path_style"
)

// TokenLookup returns a saved credential for an endpoint, if any.
type TokenLookup func(endpoint string) string

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	s3defaults := NewDefaultS3Options()
	v.SetDefault(KeyModelType, string(types.ModelKindCTC))
	v.SetDefault(KeyTags, []string{})
	v.SetDefault(KeyDatasets, []string{})
	v.SetDefault(KeyLanguage, DefaultLanguage)
	v.SetDefault(KeyCommitMessage, DefaultCommitMessage)
	v.SetDefault(KeyCreateNewRepo, false)
	v.SetDefault(KeyOnRepoExists, string(RepoExistsWarn))
	v.SetDefault(KeyPrivate, true)
	v.SetDefault(KeyEndpoint, DefaultEndpoint)
	v.SetDefault(KeyS3Region, s3defaults.Region)
	v.SetDefault(KeyS3PathStyle, s3defaults.PathStyle)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the user_name alias is read at the same layer as organization
	_ = v.BindEnv(KeyOrganization, EnvPrefix+"_ORGANIZATION", EnvPrefix+"_USER_NAME")
	return v
}

// AddFlags registers the publish flags. Flag names are the config keys in kebab case.
func AddFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file, also read from $"+EnvPrefix+"_CONFIG")
	flags.String("model-path", "", "NeMo checkpoint path or s3://bucket/key")
	flags.String("organization", DefaultAccount, "hosting account or organization name")
	flags.String("user-name", "", "alias of --organization")
	flags.String("model-type", string(types.ModelKindCTC), "model type: CTC (EncDecCTCModel) or RNNT (EncDecRNNTModel)")
	flags.StringSlice("tags", nil, "additional tags for the model card")
	flags.StringSlice("datasets", nil, "datasets the model was trained on")
	flags.String("language", DefaultLanguage, "model language")
	flags.String("token", "", "hosting access token, also read from $"+TokenEnv)
	flags.String("commit-message", DefaultCommitMessage, "commit message")
	flags.Bool("create-new-repo", false, "create the remote repository before publishing")
	flags.String("on-repo-exists", string(RepoExistsWarn), "when repository creation fails: warn or abort")
	flags.Bool("private", true, "create the repository as private")
	flags.String("git-user-name", "", "commit author name, defaults to the organization")
	flags.String("git-user-email", "", "commit author email")
	flags.String("endpoint", DefaultEndpoint, "hosting endpoint")
	flags.String("work-dir", "", "directory for the repository clone, defaults to a temporary directory")
	flags.Bool("keep-work-dir", false, "keep the repository clone after publishing")
	flags.String("s3-endpoint", "", "s3 endpoint url for s3:// model paths")
	flags.String("s3-region", NewDefaultS3Options().Region, "s3 region")
	flags.String("s3-access-key", "", "s3 access key")
	flags.String("s3-secret-key", "", "s3 secret key")
	flags.Bool("s3-path-style", true, "use s3 path style addressing")
}

var flagKeys = map[string]string{
	"config":          KeyConfig,
	"model-path":      KeyModelPath,
	"organization":    KeyOrganization,
	"user-name":       KeyUserName,
	"model-type":      KeyModelType,
	"tags":            KeyTags,
	"datasets":        KeyDatasets,
	"language":        KeyLanguage,
	"token":           KeyToken,
	"commit-message":  KeyCommitMessage,
	"create-new-repo": KeyCreateNewRepo,
	"on-repo-exists":  KeyOnRepoExists,
	"private":         KeyPrivate,
	"git-user-name":   KeyGitUserName,
	"git-user-email":  KeyGitUserEmail,
	"endpoint":        KeyEndpoint,
	"work-dir":        KeyWorkDir,
	"keep-work-dir":   KeyKeepWorkDir,
	"s3-endpoint":     KeyS3Endpoint,
	"s3-region":       KeyS3Region,
	"s3-access-key":   KeyS3AccessKey,
	"s3-secret-key":   KeyS3SecretKey,
	"s3-path-style":   KeyS3PathStyle,
}

// BindFlags binds the explicitly set flags to their keys so that they win over
// environment and config file values. Unset flags keep their viper defaults.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var binderr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed || binderr != nil {
			return
		}
		binderr = v.BindPFlag(key, f)
	})
	if binderr != nil {
		return binderr
	}
	// an explicit --user-name beats organization from env or file
	if alias := flags.Lookup("user-name"); alias != nil && alias.Changed {
		if org := flags.Lookup("organization"); org == nil || !org.Changed {
			return v.BindPFlag(KeyOrganization, alias)
		}
	}
	return nil
}

// ReadConfigFile loads the layered config file if one is configured or found.
func ReadConfigFile(v *viper.Viper) error {
	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		return v.ReadInConfig()
	}
	v.SetConfigName("nemopub")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.nemopub")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Resolve builds a validated RunConfig from the layered values.
func Resolve(v *viper.Viper, lookup TokenLookup) (RunConfig, error) {
	kind, err := types.ParseModelKind(v.GetString(KeyModelType))
	if err != nil {
		return RunConfig{}, err
	}
	policy, err := ParseRepoExistsPolicy(v.GetString(KeyOnRepoExists))
	if err != nil {
		return RunConfig{}, err
	}
	cfg := RunConfig{
		ModelPath:     v.GetString(KeyModelPath),
		AccountName:   account(v),
		ModelKind:     kind,
		Language:      v.GetString(KeyLanguage),
		Tags:          nonEmpty(v.GetStringSlice(KeyTags)),
		Datasets:      nonEmpty(v.GetStringSlice(KeyDatasets)),
		Token:         v.GetString(KeyToken),
		CommitMessage: v.GetString(KeyCommitMessage),
		CreateRepo:    v.GetBool(KeyCreateNewRepo),
		OnRepoExists:  policy,
		Private:       v.GetBool(KeyPrivate),
		GitUserName:   v.GetString(KeyGitUserName),
		GitUserEmail:  v.GetString(KeyGitUserEmail),
		Endpoint:      strings.TrimSuffix(v.GetString(KeyEndpoint), "/"),
		WorkDir:       v.GetString(KeyWorkDir),
		KeepWorkDir:   v.GetBool(KeyKeepWorkDir),
		S3: S3Options{
			Endpoint:  v.GetString(KeyS3Endpoint),
			Region:    v.GetString(KeyS3Region),
			AccessKey: v.GetString(KeyS3AccessKey),
			SecretKey: v.GetString(KeyS3SecretKey),
			PathStyle: v.GetBool(KeyS3PathStyle),
		},
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv(TokenEnv)
	}
	if cfg.Token == "" && lookup != nil {
		cfg.Token = lookup(cfg.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// account prefers organization over its user_name alias. Environment and flag values of the alias
// are already folded into organization, so only a config file can leave user_name alone.
func account(v *viper.Viper) string {
	if name := v.GetString(KeyOrganization); name != "" {
		return name
	}
	if name := v.GetString(KeyUserName); name != "" {
		return name
	}
	return DefaultAccount
}

func nonEmpty(items []string) []string {
	ret := []string{}
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}
