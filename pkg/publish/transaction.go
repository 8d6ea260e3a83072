package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/slices"
	"kubegems.io/nemopub/pkg/hub"
	"kubegems.io/nemopub/pkg/types"
)

const DefaultRemote = "origin"

// Transaction is a scoped working copy of a hosting repository. Close must be called on every
// exit path; it removes the working copy unless asked to keep it.
type Transaction struct {
	ref     types.RepoRef
	opts    Options
	url     string
	root    string // removed on close
	dir     string
	repo    *git.Repository
	written map[string]bool
}

// Begin clones the repository into the work dir. An empty remote is initialized locally on main.
func Begin(ctx context.Context, ref types.RepoRef, opts Options) (*Transaction, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repository", ref.String())

	tx := &Transaction{
		ref:     ref,
		opts:    opts,
		url:     opts.RepositoryURL(ref),
		written: map[string]bool{},
	}
	if opts.WorkDir == "" {
		tmp, err := os.MkdirTemp("", "nemopub-")
		if err != nil {
			return nil, err
		}
		tx.root = tmp
		tx.dir = filepath.Join(tmp, ref.Name)
	} else {
		tx.dir = filepath.Join(opts.WorkDir, ref.Name)
		if _, err := os.Stat(tx.dir); err == nil {
			return nil, fmt.Errorf("work dir %s already exists", tx.dir)
		}
		tx.root = tx.dir
	}

	log.V(1).Info("cloning repository", "url", tx.url, "dir", tx.dir)
	repo, err := git.PlainCloneContext(ctx, tx.dir, false, &git.CloneOptions{
		URL:             tx.url,
		RemoteName:      DefaultRemote,
		Auth:            tx.auth(),
		InsecureSkipTLS: opts.InsecureSkipTLS,
	})
	switch {
	case err == nil:
	case stderrors.Is(err, transport.ErrEmptyRemoteRepository):
		log.Info("remote repository is empty, initializing", "branch", plumbing.Main.Short())
		if repo, err = tx.initEmpty(); err != nil {
			tx.Close()
			return nil, err
		}
	default:
		tx.Close()
		return nil, fmt.Errorf("clone %s: %w", tx.url, err)
	}
	tx.repo = repo
	return tx, nil
}

func (t *Transaction) initEmpty() (*git.Repository, error) {
	if err := os.RemoveAll(t.dir); err != nil {
		return nil, err
	}
	repo, err := git.PlainInitWithOptions(t.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: DefaultRemote, URLs: []string{t.url}}); err != nil {
		return nil, err
	}
	return repo, nil
}

func (t *Transaction) auth() transport.AuthMethod {
	if t.opts.Token == "" || !(strings.HasPrefix(t.url, "http://") || strings.HasPrefix(t.url, "https://")) {
		return nil
	}
	username := t.opts.Username
	if username == "" {
		username = t.ref.Account
	}
	return &githttp.BasicAuth{Username: username, Password: t.opts.Token}
}

func (t *Transaction) Dir() string {
	return t.dir
}

// WriteFile writes content at name relative to the working copy.
func (t *Transaction) WriteFile(name string, content []byte) error {
	into := filepath.Join(t.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(into), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(into, content, 0o644); err != nil {
		return err
	}
	return t.Track(into)
}

// Track marks a file placed into the working copy by the caller as part of this transaction.
func (t *Transaction) Track(path string) error {
	rel, err := filepath.Rel(t.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside of the working copy", path)
	}
	t.written[filepath.ToSlash(rel)] = true
	return nil
}

// Written lists the files of this transaction in name order.
func (t *Transaction) Written() []string {
	files := make([]string, 0, len(t.written))
	for name := range t.written {
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

// Commit stages everything, commits and pushes. A clean working copy is not an error and
// nothing is pushed.
func (t *Transaction) Commit(ctx context.Context, message string) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("repository", t.ref.String())

	lfsobjects, err := t.convertLFS(ctx)
	if err != nil {
		return nil, err
	}
	files, err := t.describe(lfsobjects)
	if err != nil {
		return nil, err
	}

	wt, err := t.repo.Worktree()
	if err != nil {
		return nil, err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}
	result := &Result{Repository: t.ref.String(), Files: files}
	if status.IsClean() {
		log.Info("nothing to commit, repository is up to date")
		if head, err := t.repo.Head(); err == nil {
			result.Commit = head.Hash().String()
		}
		return result, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: t.opts.AuthorName, Email: t.opts.AuthorEmail, When: time.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	log.Info("committed", "commit", hash.String(), "files", len(status))

	err = t.repo.PushContext(ctx, &git.PushOptions{
		RemoteName:      DefaultRemote,
		Auth:            t.auth(),
		InsecureSkipTLS: t.opts.InsecureSkipTLS,
	})
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("push %s: %w", t.url, err)
	}
	log.Info("pushed", "url", t.url)
	result.Commit, result.Pushed = hash.String(), true
	return result, nil
}

// describe lists the written files; LFS files are described by their uploaded content.
func (t *Transaction) describe(lfsobjects map[string]hub.LFSObject) ([]types.Descriptor, error) {
	descs := []types.Descriptor{}
	for _, name := range t.Written() {
		if obj, ok := lfsobjects[name]; ok {
			descs = append(descs, types.Descriptor{
				Name:   name,
				Digest: digest.NewDigestFromEncoded(digest.SHA256, obj.Oid),
				Size:   obj.Size,
				LFS:    true,
			})
			continue
		}
		path := filepath.Join(t.dir, filepath.FromSlash(name))
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		dgst, err := digestFile(path)
		if err != nil {
			return nil, err
		}
		descs = append(descs, types.Descriptor{Name: name, Digest: dgst, Size: fi.Size()})
	}
	slices.SortFunc(descs, types.SortDescriptorName)
	return descs, nil
}

// Close releases the working copy.
func (t *Transaction) Close() error {
	if t.opts.KeepWorkDir || t.root == "" {
		return nil
	}
	return os.RemoveAll(t.root)
}
