package nemo

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
)

func writeCheckpoint(t *testing.T, dir, name, config string, compress bool) string {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	files := map[string]string{
		"./model_weights.ckpt": "weights",
	}
	if config != "" {
		files["./"+ModelConfigFileName] = config
	}
	for _, entry := range []string{"./model_weights.ckpt", "./" + ModelConfigFileName} {
		content, ok := files[entry]
		if !ok {
			continue
		}
		if err := tw.WriteHeader(&tar.Header{Name: entry, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	content := buf.Bytes()
	if compress {
		gzbuf := &bytes.Buffer{}
		gw := gzip.NewWriter(gzbuf)
		_, _ = gw.Write(content)
		_ = gw.Close()
		content = gzbuf.Bytes()
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const ctcConfig = `target: nemo.collections.asr.models.ctc_bpe_models.EncDecCTCModelBPE
sample_rate: 16000
tokenizer:
  dir: null
  type: bpe
`

const rnntConfig = `target: nemo.collections.asr.models.rnnt_bpe_models.EncDecRNNTBPEModel
sample_rate: 16000
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		path     string
		kind     types.ModelKind
		want     ModelConfig
		wantCode errors.ErrCode
	}{
		{
			name: "ctc tar",
			path: writeCheckpoint(t, dir, "ctc.nemo", ctcConfig, false),
			kind: types.ModelKindCTC,
			want: ModelConfig{
				Target:     "nemo.collections.asr.models.ctc_bpe_models.EncDecCTCModelBPE",
				SampleRate: 16000,
				Tokenizer:  &TokenizerConfig{Type: "bpe"},
			},
		},
		{
			name: "rnnt tar gz",
			path: writeCheckpoint(t, dir, "rnnt.nemo", rnntConfig, true),
			kind: types.ModelKindRNNT,
			want: ModelConfig{
				Target:     "nemo.collections.asr.models.rnnt_bpe_models.EncDecRNNTBPEModel",
				SampleRate: 16000,
			},
		},
		{
			name: "no target accepted",
			path: writeCheckpoint(t, dir, "bare.nemo", "sample_rate: 8000\n", false),
			kind: types.ModelKindRNNT,
			want: ModelConfig{SampleRate: 8000},
		},
		{
			name:     "kind mismatch",
			path:     writeCheckpoint(t, dir, "mismatch.nemo", rnntConfig, false),
			kind:     types.ModelKindCTC,
			wantCode: errors.ErrCodeCheckpointInvalid,
		},
		{
			name:     "missing config",
			path:     writeCheckpoint(t, dir, "noconfig.nemo", "", false),
			kind:     types.ModelKindCTC,
			wantCode: errors.ErrCodeCheckpointInvalid,
		},
		{
			name:     "unsupported kind",
			path:     filepath.Join(dir, "does-not-exist.nemo"),
			kind:     types.ModelKind("Conformer"),
			wantCode: errors.ErrCodeUnsupportedModelKind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(context.Background(), tt.path, tt.kind)
			if tt.wantCode != "" {
				if !errors.IsErrCode(err, tt.wantCode) {
					t.Fatalf("Load() error = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Kind != tt.kind {
				t.Errorf("Load() kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Config.Target != tt.want.Target || got.Config.SampleRate != tt.want.SampleRate {
				t.Errorf("Load() config = %+v, want %+v", got.Config, tt.want)
			}
			if (tt.want.Tokenizer == nil) != (got.Config.Tokenizer == nil) {
				t.Errorf("Load() tokenizer = %+v, want %+v", got.Config.Tokenizer, tt.want.Tokenizer)
			}
			content, _ := os.ReadFile(tt.path)
			if got.Digest != digest.FromBytes(content) {
				t.Errorf("Load() digest = %v, want %v", got.Digest, digest.FromBytes(content))
			}
			if got.Size != int64(len(content)) {
				t.Errorf("Load() size = %v, want %v", got.Size, len(content))
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.nemo"), types.ModelKindCTC)
	if err == nil || !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not exist", err)
	}
}

func TestLoadNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.nemo")
	if err := os.WriteFile(path, []byte("this is not a tar archive at all, just some text"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(context.Background(), path, types.ModelKindCTC)
	if err == nil {
		t.Fatalf("Load() expected an error for a non archive checkpoint")
	}
}

func TestModelSaveTo(t *testing.T) {
	src := writeCheckpoint(t, t.TempDir(), "my_model.nemo", ctcConfig, false)
	model, err := Load(context.Background(), src, types.ModelKindCTC)
	if err != nil {
		t.Fatal(err)
	}
	if model.Name() != "my_model" {
		t.Errorf("Name() = %v, want my_model", model.Name())
	}

	into := t.TempDir()
	saved, err := model.SaveTo(into)
	if err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if saved != filepath.Join(into, "my_model.nemo") {
		t.Errorf("SaveTo() = %v", saved)
	}
	want, _ := os.ReadFile(src)
	got, _ := os.ReadFile(saved)
	if !bytes.Equal(got, want) {
		t.Errorf("SaveTo() content differs from the checkpoint")
	}

	// saving into the checkpoint's own directory is a no-op
	same, err := model.SaveTo(filepath.Dir(src))
	if err != nil || same != src {
		t.Errorf("SaveTo(own dir) = %v, %v", same, err)
	}
}

func TestModelSaveToDetectsChangedSource(t *testing.T) {
	src := writeCheckpoint(t, t.TempDir(), "my_model.nemo", ctcConfig, false)
	model, err := Load(context.Background(), src, types.ModelKindCTC)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := model.SaveTo(t.TempDir()); err == nil {
		t.Errorf("SaveTo() expected digest mismatch error")
	}
}
