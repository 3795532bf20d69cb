package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"brewv/internal/formula"
)

// tapRepo is the git checkout of a tap.
type tapRepo struct {
	path string
	repo *gogit.Repository
}

func openTap(path string) (*tapRepo, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &tapRepo{path: path, repo: repo}, nil
}

// primaryBranch is the branch HEAD is on, or main/master when HEAD is
// detached.
func (t *tapRepo) primaryBranch() (plumbing.ReferenceName, error) {
	head, err := t.repo.Head()
	if err == nil && head.Name().IsBranch() {
		return head.Name(), nil
	}
	for _, b := range []string{"main", "master"} {
		name := plumbing.NewBranchReferenceName(b)
		if _, err := t.repo.Reference(name, true); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no primary branch in %s", t.path)
}

// search walks the history of branch touching the formula file, newest
// first, and returns the first commit whose file content contains version.
// It returns "" when no commit matches.
func (t *tapRepo) search(ctx context.Context, branch plumbing.ReferenceName, formulaName, version string) (string, error) {
	ref, err := t.repo.Reference(branch, true)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", branch, err)
	}
	tip, err := t.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", branch, err)
	}

	for _, path := range t.searchPaths(tip, formulaName) {
		rev, err := t.searchPath(ctx, ref.Hash(), path, version)
		if err != nil {
			return "", err
		}
		if rev != "" {
			return rev, nil
		}
	}
	return "", nil
}

// searchPaths puts the formula file present at the branch tip first, then
// the other layouts a tap may have used in the past.
func (t *tapRepo) searchPaths(tip *object.Commit, formulaName string) []string {
	current, err := formula.FormulaPathInRepo(formulaName, func(rel string) bool {
		_, err := tip.File(rel)
		return err == nil
	})
	if err != nil {
		return formula.CandidatePaths(formulaName)
	}

	out := []string{current}
	for _, p := range formula.CandidatePaths(formulaName) {
		if p != current {
			out = append(out, p)
		}
	}
	return out
}

func (t *tapRepo) searchPath(ctx context.Context, from plumbing.Hash, path, version string) (string, error) {
	iter, err := t.repo.Log(&gogit.LogOptions{From: from, FileName: &path})
	if err != nil {
		return "", fmt.Errorf("log %s: %w", path, err)
	}
	defer iter.Close()

	var match string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := c.File(path)
		if stderrors.Is(err, object.ErrFileNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, c.Hash, err)
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, c.Hash, err)
		}
		if strings.Contains(content, version) {
			match = c.Hash.String()
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, storer.ErrStop) {
		return "", err
	}
	return match, nil
}

// checkout detaches HEAD at rev.
func (t *tapRepo) checkout(rev string) error {
	hash, err := t.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", rev, err)
	}
	wt, err := t.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: *hash}); err != nil {
		return fmt.Errorf("checkout %s: %w", rev, err)
	}
	return nil
}

func (t *tapRepo) checkoutBranch(branch plumbing.ReferenceName) error {
	wt, err := t.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: branch}); err != nil {
		return fmt.Errorf("checkout %s: %w", branch.Short(), err)
	}
	return nil
}
