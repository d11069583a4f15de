// Package repository manages cached git checkouts pinned to task base
// commits, and applies candidate patches to them.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/odvcencio/miser/pkg/errors"
)

// Manager hands out checkouts from a local cache, cloning on first use.
// One checkout serves all candidates of a task; callers must not share a
// checkout across concurrently solved tasks.
type Manager struct {
	cacheDir     string
	cloneTimeout time.Duration
}

// NewManager creates a checkout manager rooted at cacheDir.
func NewManager(cacheDir string, cloneTimeout time.Duration) *Manager {
	return &Manager{cacheDir: cacheDir, cloneTimeout: cloneTimeout}
}

// Checkout is a working tree pinned to a task's base commit.
type Checkout struct {
	Dir  string
	repo *git.Repository
	base plumbing.Hash
}

// Checkout returns a clean working tree for repoName at baseCommit,
// cloning into the cache if this repo/commit pair has not been seen.
func (m *Manager) Checkout(ctx context.Context, repoName, baseCommit string) (*Checkout, error) {
	dir := m.checkoutDir(repoName, baseCommit)

	repo, err := git.PlainOpen(dir)
	if err != nil {
		repo, err = m.clone(ctx, repoName, dir)
		if err != nil {
			return nil, err
		}
	}

	checkout := &Checkout{Dir: dir, repo: repo, base: plumbing.NewHash(baseCommit)}
	if err := checkout.Reset(); err != nil {
		return nil, err
	}
	return checkout, nil
}

func (m *Manager) clone(ctx context.Context, repoName, dir string) (*git.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCheckout, "creating cache directory")
	}

	cloneCtx := ctx
	if m.cloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, m.cloneTimeout)
		defer cancel()
	}

	repo, err := git.PlainCloneContext(cloneCtx, dir, false, &git.CloneOptions{
		URL: cloneURL(repoName),
	})
	if err != nil {
		// A partial clone poisons the cache; remove it.
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, errors.ErrCodeCheckout, "cloning repository").
			WithContext("repo", repoName).
			WithRetryable(true)
	}
	return repo, nil
}

// checkoutDir maps a repo/commit pair to a stable cache path, keyed by the
// first 8 commit characters.
func (m *Manager) checkoutDir(repoName, commit string) string {
	short := commit
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(m.cacheDir, strings.ReplaceAll(repoName, "/", "_"), short)
}

func cloneURL(repoName string) string {
	return fmt.Sprintf("https://github.com/%s.git", repoName)
}

// Reset restores the working tree to the base commit and removes untracked
// files, discarding anything a previous candidate left behind.
func (c *Checkout) Reset() error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckout, "opening worktree")
	}

	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: c.base}); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckout, "resetting to base commit").
			WithContext("commit", c.base.String())
	}

	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckout, "cleaning untracked files")
	}

	return nil
}

// ReadFile reads a repository-relative file from the working tree.
func (c *Checkout) ReadFile(relPath string) ([]byte, error) {
	if !isLocalPath(relPath) {
		return nil, errors.New(errors.ErrCodePathEscape, "path escapes the checkout").
			WithContext("path", relPath)
	}
	return os.ReadFile(filepath.Join(c.Dir, relPath))
}

// isLocalPath reports whether relPath stays inside the checkout when
// joined to it.
func isLocalPath(relPath string) bool {
	if relPath == "" || filepath.IsAbs(relPath) {
		return false
	}
	return filepath.IsLocal(relPath)
}
