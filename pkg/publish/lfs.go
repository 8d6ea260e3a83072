package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitattributes"
	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/slices"
	"kubegems.io/nemopub/pkg/hub"
	"kubegems.io/nemopub/pkg/progress"
	"kubegems.io/nemopub/pkg/types"
)

const (
	GitAttributesFileName = ".gitattributes"
	LFSPointerVersion     = "https://git-lfs.github.com/spec/v1"
	// files above this size go to LFS even when no pattern tracks them
	DefaultLFSThreshold int64 = 10 << 20
)

// LFSTrackedPatterns are always routed through LFS.
var LFSTrackedPatterns = []string{"*.nemo"}

type LFSClient interface {
	LFSBatch(ctx context.Context, ref types.RepoRef, objects []hub.LFSObject) ([]hub.LFSObjectResponse, error)
	LFSUpload(ctx context.Context, obj hub.LFSObjectResponse, getbody func() (io.ReadCloser, error)) error
}

// LFSPointer is the text that replaces an LFS tracked file in git.
func LFSPointer(dgst digest.Digest, size int64) []byte {
	return []byte(fmt.Sprintf("version %s\noid %s:%s\nsize %d\n", LFSPointerVersion, dgst.Algorithm(), dgst.Encoded(), size))
}

// IsLFSPointer reports whether content is already a pointer file.
func IsLFSPointer(content []byte) bool {
	return bytes.HasPrefix(content, []byte("version "+LFSPointerVersion+"\n"))
}

// EnsureLFSTracking appends the tracking lines missing from .gitattributes.
func (t *Transaction) EnsureLFSTracking(patterns ...string) error {
	attrfile := filepath.Join(t.dir, GitAttributesFileName)
	existing, err := os.ReadFile(attrfile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	lines := strings.Split(string(existing), "\n")
	content := string(existing)
	changed := false
	for _, pattern := range patterns {
		line := pattern + " filter=lfs diff=lfs merge=lfs -text"
		if slices.Contains(lines, line) {
			continue
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += line + "\n"
		changed = true
	}
	if !changed {
		return nil
	}
	return t.WriteFile(GitAttributesFileName, []byte(content))
}

func (t *Transaction) lfsMatcher() (gitattributes.Matcher, error) {
	f, err := os.Open(filepath.Join(t.dir, GitAttributesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return gitattributes.NewMatcher(nil), nil
		}
		return nil, err
	}
	defer f.Close()
	attrs, err := gitattributes.ReadAttributes(f, nil, true)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", GitAttributesFileName, err)
	}
	return gitattributes.NewMatcher(attrs), nil
}

type lfsFile struct {
	name string
	path string
	obj  hub.LFSObject
}

// convertLFS uploads the written files that belong in LFS and replaces them with pointers.
// The returned objects are keyed by file name.
func (t *Transaction) convertLFS(ctx context.Context) (map[string]hub.LFSObject, error) {
	log := logr.FromContextOrDiscard(ctx)
	if t.opts.LFS == nil {
		return nil, nil
	}
	matcher, err := t.lfsMatcher()
	if err != nil {
		return nil, err
	}

	files := []lfsFile{}
	for _, name := range t.Written() {
		path := filepath.Join(t.dir, filepath.FromSlash(name))
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		attrs, _ := matcher.Match(strings.Split(name, "/"), []string{"filter"})
		filter, tracked := attrs["filter"]
		if !(tracked && filter.Value() == "lfs") && fi.Size() <= t.opts.lfsThreshold() {
			continue
		}
		content, err := readHead(path, len(LFSPointerVersion)+16)
		if err != nil {
			return nil, err
		}
		if IsLFSPointer(content) {
			continue
		}
		dgst, err := digestFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, lfsFile{name: name, path: path, obj: hub.LFSObject{Oid: dgst.Encoded(), Size: fi.Size()}})
	}
	if len(files) == 0 {
		return nil, nil
	}

	objects := make([]hub.LFSObject, len(files))
	for i, f := range files {
		objects[i] = f.obj
	}
	responses, err := t.opts.LFS.LFSBatch(ctx, t.ref, objects)
	if err != nil {
		return nil, err
	}
	byoid := map[string]hub.LFSObjectResponse{}
	for _, resp := range responses {
		byoid[resp.Oid] = resp
	}
	for _, f := range files {
		if _, ok := byoid[f.obj.Oid]; !ok {
			return nil, fmt.Errorf("lfs batch response has no object %s", f.obj.Oid)
		}
	}

	out := t.opts.Progress
	if out == nil {
		out = io.Discard
	}
	mb := progress.NewMultiBar(out, 40, 1)
	runctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go mb.Run(runctx)

	for _, f := range files {
		f, resp := f, byoid[f.obj.Oid]
		mb.Go(f.name, "pending", func(b *progress.Bar) error {
			getbody := func() (io.ReadCloser, error) {
				rc, err := os.Open(f.path)
				if err != nil {
					return nil, err
				}
				return b.WrapReader(rc, f.obj.Size), nil
			}
			return t.opts.LFS.LFSUpload(ctx, resp, getbody)
		})
	}
	if err := mb.Wait(); err != nil {
		return nil, err
	}

	converted := map[string]hub.LFSObject{}
	for _, f := range files {
		if err := os.WriteFile(f.path, LFSPointer(digest.NewDigestFromEncoded(digest.SHA256, f.obj.Oid), f.obj.Size), 0o644); err != nil {
			return nil, err
		}
		log.V(1).Info("replaced with lfs pointer", "file", f.name, "oid", f.obj.Oid, "size", f.obj.Size)
		converted[f.name] = f.obj
	}
	return converted, nil
}

func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.SHA256.FromReader(f)
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
