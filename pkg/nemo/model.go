package nemo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/mholt/archiver/v4"
	"github.com/opencontainers/go-digest"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
	"sigs.k8s.io/yaml"
)

const ModelConfigFileName = "model_config.yaml"

// ModelConfig is the part of model_config.yaml inside a .nemo archive we care about.
type ModelConfig struct {
	Target     string           `json:"target,omitempty"`
	SampleRate int              `json:"sample_rate,omitempty"`
	Labels     []string         `json:"labels,omitempty"`
	Tokenizer  *TokenizerConfig `json:"tokenizer,omitempty"`
}

type TokenizerConfig struct {
	Dir  string `json:"dir,omitempty"`
	Type string `json:"type,omitempty"`
}

// ClassName is the last element of the target, e.g. EncDecCTCModelBPE.
func (c ModelConfig) ClassName() string {
	if i := strings.LastIndex(c.Target, "."); i != -1 {
		return c.Target[i+1:]
	}
	return c.Target
}

// Model is a restored checkpoint handle.
type Model struct {
	Kind   types.ModelKind
	Path   string
	Config ModelConfig
	Digest digest.Digest
	Size   int64

	accepts func(class string) bool
}

var (
	nemoTar   = archiver.Tar{}
	nemoTarGz = archiver.CompressedArchive{
		Archival:    archiver.Tar{},
		Compression: archiver.Gz{},
	}
)

// loaders is the fixed table of supported architectures.
var loaders = map[types.ModelKind]func() *Model{
	types.ModelKindCTC: func() *Model {
		return &Model{Kind: types.ModelKindCTC, accepts: func(class string) bool {
			return strings.Contains(class, "CTC") && !strings.Contains(class, "RNNT")
		}}
	},
	types.ModelKindRNNT: func() *Model {
		return &Model{Kind: types.ModelKindRNNT, accepts: func(class string) bool {
			return strings.Contains(class, "RNNT")
		}}
	},
}

// Load restores the checkpoint at path as a model of the given kind.
// Unknown kinds fail before the file is touched.
func Load(ctx context.Context, path string, kind types.ModelKind) (*Model, error) {
	newModel, ok := loaders[kind]
	if !ok {
		return nil, errors.NewUnsupportedModelKindError(string(kind))
	}
	model := newModel()
	if err := model.RestoreFrom(ctx, path); err != nil {
		return nil, err
	}
	return model, nil
}

func (m *Model) Name() string {
	return types.ModelNameFromPath(m.Path)
}

func (m *Model) FileName() string {
	return filepath.Base(m.Path)
}

// RestoreFrom reads the archive at path, parses its model config and records the checkpoint digest.
func (m *Model) RestoreFrom(ctx context.Context, path string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path, "kind", m.Kind)

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return errors.NewCheckpointInvalidError(path, fmt.Errorf("is a directory"))
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dgst, err := digest.Canonical.FromReader(f)
	if err != nil {
		return fmt.Errorf("digest checkpoint %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	config, err := readModelConfig(ctx, f)
	if err != nil {
		return errors.NewCheckpointInvalidError(path, err)
	}
	if config.Target != "" && m.accepts != nil && !m.accepts(config.ClassName()) {
		return errors.NewCheckpointInvalidError(path, fmt.Errorf("target %s is not a %s model", config.Target, m.Kind.Short()))
	}

	m.Path, m.Config, m.Digest, m.Size = path, *config, dgst, fi.Size()
	log.V(1).Info("checkpoint restored", "target", config.Target, "digest", dgst.String(), "size", fi.Size())
	return nil
}

func readModelConfig(ctx context.Context, r io.Reader) (*ModelConfig, error) {
	br := bufio.NewReader(r)
	var extractor archiver.Extractor = nemoTar
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		extractor = nemoTarGz
	}

	var (
		config *ModelConfig
		found  bool
	)
	err := extractor.Extract(ctx, br, nil, func(ctx context.Context, f archiver.File) error {
		if found || f.IsDir() || path.Base(f.NameInArchive) != ModelConfigFileName {
			return nil
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		config = &ModelConfig{}
		if err := yaml.Unmarshal(content, config); err != nil {
			return fmt.Errorf("parse %s: %w", ModelConfigFileName, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s not found in archive", ModelConfigFileName)
	}
	return config, nil
}

// SaveTo writes the checkpoint into dir under its original file name and verifies the copy.
func (m *Model) SaveTo(dir string) (string, error) {
	into := filepath.Join(dir, m.FileName())
	if srcfi, err := os.Stat(m.Path); err == nil {
		if dstfi, err := os.Stat(into); err == nil && os.SameFile(srcfi, dstfi) {
			return into, nil
		}
	}
	src, err := os.Open(m.Path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.OpenFile(into, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	digester := digest.Canonical.Digester()
	if _, err := io.Copy(io.MultiWriter(dst, digester.Hash()), src); err != nil {
		return "", fmt.Errorf("save checkpoint to %s: %w", into, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	if m.Digest != "" && digester.Digest() != m.Digest {
		return "", fmt.Errorf("save checkpoint to %s: digest mismatch %s != %s", into, digester.Digest(), m.Digest)
	}
	return into, nil
}
