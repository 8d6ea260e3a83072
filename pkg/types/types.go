package types

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"kubegems.io/nemopub/pkg/errors"
)

// ModelKind is the architecture family of a speech recognition checkpoint.
type ModelKind string

const (
	ModelKindCTC  ModelKind = "EncDecCTCModel"
	ModelKindRNNT ModelKind = "EncDecRNNTModel"
)

var ModelKinds = []ModelKind{ModelKindCTC, ModelKindRNNT}

// ParseModelKind accepts the short family name in any case or the NeMo class name.
func ParseModelKind(raw string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ctc", strings.ToLower(string(ModelKindCTC)):
		return ModelKindCTC, nil
	case "rnnt", strings.ToLower(string(ModelKindRNNT)):
		return ModelKindRNNT, nil
	default:
		return "", errors.NewUnsupportedModelKindError(raw)
	}
}

func (k ModelKind) Short() string {
	switch k {
	case ModelKindCTC:
		return "CTC"
	case ModelKindRNNT:
		return "RNNT"
	default:
		return string(k)
	}
}

// RepoRef identifies a hosting repository as {account}/{name}.
type RepoRef struct {
	Account string
	Name    string
}

func (r RepoRef) String() string {
	if r.Account == "" {
		return r.Name
	}
	return r.Account + "/" + r.Name
}

func ParseRepoRef(raw string) (RepoRef, error) {
	splits := strings.Split(strings.Trim(raw, "/"), "/")
	switch {
	case len(splits) == 1 && splits[0] != "":
		return RepoRef{Name: splits[0]}, nil
	case len(splits) == 2 && splits[0] != "" && splits[1] != "":
		return RepoRef{Account: splits[0], Name: splits[1]}, nil
	default:
		return RepoRef{}, fmt.Errorf("invalid repository id: %q", raw)
	}
}

// ModelNameFromPath returns the checkpoint base name with its final extension stripped.
// Both local paths and object URIs such as s3://bucket/dir/model.nemo are accepted.
func ModelNameFromPath(p string) string {
	var base string
	if strings.Contains(p, "://") {
		base = path.Base(p)
	} else {
		base = filepath.Base(p)
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// RepoRefForModel derives the repository id from the account and the checkpoint path.
func RepoRefForModel(account, modelPath string) RepoRef {
	return RepoRef{Account: account, Name: ModelNameFromPath(modelPath)}
}

type Descriptor struct {
	Name   string        `json:"name"`
	Digest digest.Digest `json:"digest,omitempty"`
	Size   int64         `json:"size,omitempty"`
	LFS    bool          `json:"lfs,omitempty"`
}

func SortDescriptorName(a, b Descriptor) int {
	return strings.Compare(a.Name, b.Name)
}
