// Package testutil builds scratch tap repositories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Tap is a git repository laid out like a brew tap checkout under a fake
// brew repository root.
type Tap struct {
	t        *testing.T
	BrewRepo string // what `brew --repository` would print
	Path     string // <BrewRepo>/Library/Taps/<user>/homebrew-<repo>
	Repo     *gogit.Repository
	when     time.Time
}

// NewTap initialises an empty tap for "user/repo" on branch master.
func NewTap(t *testing.T, user, repo string) *Tap {
	t.Helper()
	brewRepo := t.TempDir()
	path := filepath.Join(brewRepo, "Library", "Taps", user, "homebrew-"+repo)
	require.NoError(t, os.MkdirAll(path, 0o755))

	r, err := gogit.PlainInit(path, false)
	require.NoError(t, err)

	return &Tap{t: t, BrewRepo: brewRepo, Path: path, Repo: r, when: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Commit writes content to rel and commits it, returning the commit hash.
func (tp *Tap) Commit(rel, content, msg string) string {
	tp.t.Helper()
	full := filepath.Join(tp.Path, filepath.FromSlash(rel))
	require.NoError(tp.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(tp.t, os.WriteFile(full, []byte(content), 0o644))

	wt, err := tp.Repo.Worktree()
	require.NoError(tp.t, err)
	_, err = wt.Add(rel)
	require.NoError(tp.t, err)

	tp.when = tp.when.Add(time.Hour)
	h, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: tp.when},
	})
	require.NoError(tp.t, err)
	return h.String()
}

// Head returns the name HEAD points at ("HEAD" when detached) and its hash.
func (tp *Tap) Head() (plumbing.ReferenceName, string) {
	tp.t.Helper()
	ref, err := tp.Repo.Head()
	require.NoError(tp.t, err)
	return ref.Name(), ref.Hash().String()
}

// ReadFile returns the working-tree content of rel.
func (tp *Tap) ReadFile(rel string) string {
	tp.t.Helper()
	b, err := os.ReadFile(filepath.Join(tp.Path, filepath.FromSlash(rel)))
	require.NoError(tp.t, err)
	return string(b)
}
