package publish

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/hub"
	"kubegems.io/nemopub/pkg/types"
)

var testRef = types.RepoRef{Account: "acme", Name: "my_model"}

// local remotes are served by git-upload-pack and git-receive-pack
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git is not installed")
		}
	}
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	endpoint := t.TempDir()
	_, err := git.PlainInitWithOptions(filepath.Join(endpoint, testRef.String()), &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	})
	require.NoError(t, err)
	return endpoint
}

func seedRemote(t *testing.T, endpoint string, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{InitOptions: git.InitOptions{DefaultBranch: plumbing.Main}})
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	_, err = wt.Commit("seed", &git.CommitOptions{Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()}})
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: DefaultRemote, URLs: []string{filepath.Join(endpoint, testRef.String())}})
	require.NoError(t, err)
	require.NoError(t, repo.Push(&git.PushOptions{RemoteName: DefaultRemote}))
}

func cloneRemote(t *testing.T, endpoint string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: filepath.Join(endpoint, testRef.String())})
	require.NoError(t, err)
	return dir, repo
}

type fileSaver struct {
	name    string
	content []byte
	err     error
}

func (s fileSaver) SaveTo(dir string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	into := filepath.Join(dir, s.name)
	return into, os.WriteFile(into, s.content, 0o644)
}

type fakeLFS struct {
	stored  map[string][]byte
	batches int
}

func (f *fakeLFS) LFSBatch(ctx context.Context, ref types.RepoRef, objects []hub.LFSObject) ([]hub.LFSObjectResponse, error) {
	f.batches++
	resps := []hub.LFSObjectResponse{}
	for _, obj := range objects {
		resp := hub.LFSObjectResponse{LFSObject: obj}
		if _, ok := f.stored[obj.Oid]; !ok {
			resp.Actions = map[string]hub.LFSAction{"upload": {Href: "memory://" + obj.Oid}}
		}
		resps = append(resps, resp)
	}
	return resps, nil
}

func (f *fakeLFS) LFSUpload(ctx context.Context, obj hub.LFSObjectResponse, getbody func() (io.ReadCloser, error)) error {
	if !obj.NeedsUpload() {
		return nil
	}
	rc, err := getbody()
	if err != nil {
		return err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	f.stored[obj.Oid] = content
	return nil
}

func fileNames(files []types.Descriptor) []string {
	names := []string{}
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names
}

func testOptions(t *testing.T, endpoint string, lfs LFSClient) Options {
	return Options{
		Endpoint:    endpoint,
		WorkDir:     t.TempDir(),
		AuthorName:  "alice",
		AuthorEmail: "alice@example.com",
		LFS:         lfs,
	}
}

func TestLFSPointer(t *testing.T) {
	dgst := digest.FromString("nemo")
	got := string(LFSPointer(dgst, 4))
	want := "version https://git-lfs.github.com/spec/v1\noid sha256:" + dgst.Encoded() + "\nsize 4\n"
	assert.Equal(t, want, got)
	assert.True(t, IsLFSPointer([]byte(got)))
	assert.False(t, IsLFSPointer([]byte("nemo")))
}

func TestPublishToEmptyRemote(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)
	lfs := &fakeLFS{stored: map[string][]byte{}}
	opts := testOptions(t, endpoint, lfs)
	checkpoint := bytes.Repeat([]byte("weights"), 1024)
	readme := []byte("---\nlanguage:\n- ja\n---\n\n# my_model\n")

	result, err := NewPublisher(opts).Publish(context.Background(), testRef, fileSaver{name: "my_model.nemo", content: checkpoint}, readme, "Initial commit!")
	require.NoError(t, err)
	assert.True(t, result.Pushed)
	dgst := digest.FromBytes(checkpoint)
	assert.Equal(t, []string{".gitattributes", "README.md", "my_model.nemo"}, fileNames(result.Files))
	assert.Equal(t, types.Descriptor{Name: "my_model.nemo", Digest: dgst, Size: int64(len(checkpoint)), LFS: true}, result.Files[2])
	assert.Equal(t, types.Descriptor{Name: "README.md", Digest: digest.FromBytes(readme), Size: int64(len(readme))}, result.Files[1])
	assert.Equal(t, checkpoint, lfs.stored[dgst.Encoded()])

	dir, repo := cloneRemote(t, endpoint)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, plumbing.Main, head.Name())
	assert.Equal(t, result.Commit, head.Hash().String())
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Initial commit!", commit.Message)
	assert.Equal(t, "alice", commit.Author.Name)

	gotReadme, _ := os.ReadFile(filepath.Join(dir, "README.md"))
	assert.Equal(t, readme, gotReadme)
	gotPointer, _ := os.ReadFile(filepath.Join(dir, "my_model.nemo"))
	assert.Equal(t, LFSPointer(dgst, int64(len(checkpoint))), gotPointer)
	gotAttrs, _ := os.ReadFile(filepath.Join(dir, ".gitattributes"))
	assert.Equal(t, "*.nemo filter=lfs diff=lfs merge=lfs -text\n", string(gotAttrs))

	_, err = os.Stat(filepath.Join(opts.WorkDir, testRef.Name))
	assert.True(t, os.IsNotExist(err), "working copy not released")
}

func TestPublishToExistingRemote(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)
	seedRemote(t, endpoint, map[string]string{
		"README.md":      "old",
		".gitattributes": "*.bin filter=lfs diff=lfs merge=lfs -text",
	})
	opts := testOptions(t, endpoint, &fakeLFS{stored: map[string][]byte{}})

	result, err := NewPublisher(opts).Publish(context.Background(), testRef, fileSaver{name: "my_model.nemo", content: []byte("ckpt")}, []byte("new"), "update")
	require.NoError(t, err)
	assert.True(t, result.Pushed)

	dir, repo := cloneRemote(t, endpoint)
	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	count := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error { count++; return nil }))
	assert.Equal(t, 2, count)

	gotReadme, _ := os.ReadFile(filepath.Join(dir, "README.md"))
	assert.Equal(t, "new", string(gotReadme))
	gotAttrs, _ := os.ReadFile(filepath.Join(dir, ".gitattributes"))
	assert.Equal(t, "*.bin filter=lfs diff=lfs merge=lfs -text\n*.nemo filter=lfs diff=lfs merge=lfs -text\n", string(gotAttrs))
}

func TestPublishNothingToCommit(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)
	lfs := &fakeLFS{stored: map[string][]byte{}}
	saver := fileSaver{name: "my_model.nemo", content: []byte("ckpt")}

	first, err := NewPublisher(testOptions(t, endpoint, lfs)).Publish(context.Background(), testRef, saver, []byte("readme"), "Initial commit!")
	require.NoError(t, err)
	second, err := NewPublisher(testOptions(t, endpoint, lfs)).Publish(context.Background(), testRef, saver, []byte("readme"), "Initial commit!")
	require.NoError(t, err)

	assert.False(t, second.Pushed)
	assert.Equal(t, first.Commit, second.Commit)
}

func TestPublishWithoutLFS(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)

	result, err := NewPublisher(testOptions(t, endpoint, nil)).Publish(context.Background(), testRef, fileSaver{name: "my_model.nemo", content: []byte("ckpt")}, []byte("readme"), "Initial commit!")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "my_model.nemo"}, fileNames(result.Files))
	for _, file := range result.Files {
		assert.False(t, file.LFS, file.Name)
	}

	dir, _ := cloneRemote(t, endpoint)
	got, _ := os.ReadFile(filepath.Join(dir, "my_model.nemo"))
	assert.Equal(t, "ckpt", string(got))
}

func TestPublishFailureReleasesWorkingCopy(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)
	opts := testOptions(t, endpoint, nil)

	_, err := NewPublisher(opts).Publish(context.Background(), testRef, fileSaver{err: stderrors.New("disk full")}, []byte("readme"), "Initial commit!")
	assert.True(t, errors.IsErrCode(err, errors.ErrCodePublish), "got %v", err)

	_, statErr := os.Stat(filepath.Join(opts.WorkDir, testRef.Name))
	assert.True(t, os.IsNotExist(statErr), "working copy not released")
}

func TestPublishMissingRemote(t *testing.T) {
	requireGit(t)
	opts := testOptions(t, t.TempDir(), nil)

	_, err := NewPublisher(opts).Publish(context.Background(), testRef, fileSaver{name: "m.nemo"}, []byte("readme"), "Initial commit!")
	assert.True(t, errors.IsErrCode(err, errors.ErrCodePublish), "got %v", err)
}

func TestBeginTemporaryWorkDir(t *testing.T) {
	requireGit(t)
	endpoint := newBareRemote(t)
	opts := testOptions(t, endpoint, nil)
	opts.WorkDir = ""

	tx, err := Begin(context.Background(), testRef, opts)
	require.NoError(t, err)
	dir := tx.Dir()
	assert.DirExists(t, filepath.Join(dir, ".git"))
	require.NoError(t, tx.Close())
	assert.NoDirExists(t, filepath.Dir(dir))
}
