package history

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewv/internal/brew"
	"brewv/internal/errors"
	"brewv/internal/fetch"
	"brewv/internal/hash"
	"brewv/internal/testutil"
)

const (
	platformTag = "x86_64_linux"
	formulaFile = "Formula/foo.rb"
)

func formulaSource(version string, bottled bool) string {
	var b strings.Builder
	b.WriteString("class Foo < Formula\n")
	b.WriteString(`  url "https://example.com/foo-` + version + `.tar.gz"` + "\n")
	if bottled {
		b.WriteString("  bottle do\n    sha256 x86_64_linux: \"...\"\n  end\n")
	}
	b.WriteString("end\n")
	return b.String()
}

type fixture struct {
	tap     *testutil.Tap
	brew    *testutil.FakeBrew
	locator *Locator
	commits map[string]string
}

func newFixture(t *testing.T, tapName string) *fixture {
	t.Helper()
	user, repo, _ := strings.Cut(tapName, "/")
	tap := testutil.NewTap(t, user, repo)

	commits := map[string]string{
		"1.0.0": tap.Commit(formulaFile, formulaSource("1.0.0", false), "foo 1.0.0"),
		"1.2.3": tap.Commit(formulaFile, formulaSource("1.2.3", true), "foo 1.2.3"),
	}
	tap.Commit("README.md", "mentions 1.2.3 but is not the formula\n", "docs")
	commits["1.3.0"] = tap.Commit(formulaFile, formulaSource("1.3.0", false), "foo 1.3.0")

	fb := &testutil.FakeBrew{TapRepo: tap, TapName: tapName, FormulaFile: formulaFile, Platform: platformTag}
	return &fixture{
		tap:  tap,
		brew: fb,
		locator: &Locator{
			Brew:     fb,
			Fetcher:  fetch.Client{Logger: zerolog.Nop()},
			Platform: platformTag,
			Logger:   zerolog.Nop(),
		},
		commits: commits,
	}
}

func TestLocateBuildsFromSourceAtMatchingRevision(t *testing.T) {
	fx := newFixture(t, "someuser/sometap")
	fx.brew.Bottle = nil

	co, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "1.0.0", CacheFile: filepath.Join(t.TempDir(), "c")})
	require.NoError(t, err)

	assert.Equal(t, fx.commits["1.0.0"], co.Revision)
	assert.Equal(t, "foo", co.Target)
	assert.False(t, co.Bottle)

	name, hash := fx.tap.Head()
	assert.Equal(t, plumbing.HEAD, name)
	assert.Equal(t, fx.commits["1.0.0"], hash)
	assert.Contains(t, fx.tap.ReadFile(formulaFile), "foo-1.0.0")

	require.NoError(t, co.Restore())
	name, hash = fx.tap.Head()
	assert.Equal(t, plumbing.NewBranchReferenceName("master"), name)
	assert.Equal(t, fx.commits["1.3.0"], hash)
	assert.Contains(t, fx.tap.ReadFile(formulaFile), "foo-1.3.0")

	require.NoError(t, co.Restore())
}

func TestLocateDownloadsBottleFromRevision(t *testing.T) {
	fx := newFixture(t, "someuser/sometap")
	bottle := []byte("bottle at 1.2.3")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bottle)
	}))
	defer srv.Close()
	fx.brew.Bottle = &brew.BottleFile{URL: srv.URL + "/foo.tar.gz", SHA256: hash.Sum(bottle)}

	cache := filepath.Join(t.TempDir(), "foo--1.2.3.x86_64_linux.bottle.tar.gz")
	co, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "1.2.3", CacheFile: cache})
	require.NoError(t, err)
	defer co.Restore()

	assert.Equal(t, fx.commits["1.2.3"], co.Revision)
	assert.True(t, co.Bottle)
	assert.Equal(t, cache, co.Target)

	got, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.Equal(t, bottle, got)

	// metadata was re-read after the checkout
	require.Len(t, fx.brew.Seen, 2)
	assert.Contains(t, fx.brew.Seen[1], "foo-1.2.3")
}

func TestLocateRestoresWhenDownloadFails(t *testing.T) {
	fx := newFixture(t, "someuser/sometap")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()
	fx.brew.Bottle = &brew.BottleFile{URL: srv.URL + "/foo.tar.gz", SHA256: hash.Sum([]byte("original"))}

	_, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "1.2.3", CacheFile: filepath.Join(t.TempDir(), "c")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrHashMismatch))

	name, hash := fx.tap.Head()
	assert.Equal(t, plumbing.NewBranchReferenceName("master"), name)
	assert.Equal(t, fx.commits["1.3.0"], hash)
}

func TestLocateUsesHintWithoutSearching(t *testing.T) {
	fx := newFixture(t, "homebrew/core")

	co, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "does-not-appear", Hint: fx.commits["1.0.0"]})
	require.NoError(t, err)
	defer co.Restore()

	assert.Equal(t, fx.commits["1.0.0"], co.Revision)
	_, hash := fx.tap.Head()
	assert.Equal(t, fx.commits["1.0.0"], hash)
}

func TestLocateRefusesCoreSearchWithoutSlow(t *testing.T) {
	var logs bytes.Buffer
	fb := &testutil.FakeBrew{TapName: brew.CoreTap}
	l := &Locator{Brew: fb, Platform: platformTag, Logger: zerolog.New(&logs)}

	_, err := l.Locate(context.Background(), Request{Formula: "foo", Version: "1.2.3"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSlowSearchDisabled))
	assert.Contains(t, err.Error(), "--slow")
	assert.NotContains(t, logs.String(), `"level":"error"`, "the caller reports the error")
	assert.Equal(t, 1, errors.ExitCode(err))
	assert.Equal(t, 0, fb.Called("--repository"), "history must not be touched")
}

func TestLocateSearchesCoreWhenSlowAllowed(t *testing.T) {
	fx := newFixture(t, "homebrew/core")

	co, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "1.3.0", AllowSlow: true})
	require.NoError(t, err)
	defer co.Restore()
	assert.Equal(t, fx.commits["1.3.0"], co.Revision)
}

func TestLocateVersionNotFound(t *testing.T) {
	fx := newFixture(t, "someuser/sometap")
	var logs bytes.Buffer
	fx.locator.Logger = zerolog.New(&logs)

	_, err := fx.locator.Locate(context.Background(), Request{Formula: "foo", Version: "9.9.9"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrVersionNotFound))
	assert.NotContains(t, logs.String(), `"level":"error"`, "the caller reports the error")

	name, _ := fx.tap.Head()
	assert.Equal(t, plumbing.NewBranchReferenceName("master"), name)
}

func TestSearchFollowsFormulaMove(t *testing.T) {
	tap := testutil.NewTap(t, "someuser", "sometap")
	old := tap.Commit("Formula/foo.rb", formulaSource("0.9.0", false), "foo 0.9.0")
	wt, err := tap.Repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Remove("Formula/foo.rb")
	require.NoError(t, err)
	tap.Commit("Formula/f/foo.rb", formulaSource("1.0.0", false), "shard foo")

	repo, err := openTap(tap.Path)
	require.NoError(t, err)
	branch, err := repo.primaryBranch()
	require.NoError(t, err)

	rev, err := repo.search(context.Background(), branch, "foo", "0.9.0")
	require.NoError(t, err)
	assert.Equal(t, old, rev)
}

func TestAuthHeaders(t *testing.T) {
	l := &Locator{TokenHost: "ghcr.io", Token: "QQ=="}
	assert.Equal(t, map[string]string{"Authorization": "Bearer QQ=="}, l.authHeaders("https://ghcr.io/v2/homebrew/core/foo/blobs/sha256:abc"))
	assert.Nil(t, l.authHeaders("https://example.com/foo.tar.gz"))
}
