// Package history finds a formula version in its tap's git history when no
// registry has a bottle for it, and checks that revision out so brew can
// install from it.
package history

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"brewv/internal/brew"
	"brewv/internal/errors"
	"brewv/internal/fetch"
	"brewv/internal/formula"
)

// Brew is the part of the brew CLI the locator needs.
type Brew interface {
	Info(ctx context.Context, formula string) (*brew.FormulaInfo, error)
	Repository(ctx context.Context) (string, error)
}

type Downloader interface {
	Fetch(ctx context.Context, url, dest string, opts ...fetch.Option) error
}

type Locator struct {
	Brew     Brew
	Fetcher  Downloader
	Platform string
	Logger   zerolog.Logger

	// TokenHost and Token authenticate bottle downloads whose URL is on
	// TokenHost, which is how tap bottle blocks point at ghcr.io.
	TokenHost string
	Token     string
}

type Request struct {
	Formula   string
	Version   string
	Hint      string // revision to use instead of searching
	AllowSlow bool   // permit searching the history of homebrew/core
	CacheFile string // where a bottle found at the revision is stored
}

// Checkout is a tap held at a historical revision. Restore must be called
// once the install that depends on it is done.
type Checkout struct {
	Target   string // bottle path or bare formula name to hand to brew install
	Revision string
	Bottle   bool

	restore  func() error
	restored bool
}

// Restore puts the tap back on its primary branch. It is safe to call more
// than once.
func (c *Checkout) Restore() error {
	if c == nil || c.restored || c.restore == nil {
		return nil
	}
	c.restored = true
	return c.restore()
}

// Locate resolves req to a revision of the formula's tap, checks it out and
// returns what to install from it. On error the tap is already restored.
func (l *Locator) Locate(ctx context.Context, req Request) (*Checkout, error) {
	info, err := l.Brew.Info(ctx, req.Formula)
	if err != nil {
		return nil, err
	}

	revision := req.Hint
	if revision == "" && info.IsCore() && !req.AllowSlow {
		return nil, errors.Newf(errors.ErrSlowSearchDisabled, "searching %s history is slow, enable it with --slow", brew.CoreTap)
	}

	brewRepo, err := l.Brew.Repository(ctx)
	if err != nil {
		return nil, err
	}
	repoPath, err := formula.TapRepoPath(brewRepo, info.Tap)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrGit, "locate tap of %s", req.Formula)
	}
	tap, err := openTap(repoPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGit, "open tap")
	}
	primary, err := tap.primaryBranch()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGit, "open tap")
	}

	if revision == "" {
		l.Logger.Warn().Str("tap", info.Tap).Msg("Searching for version in git directory, this may take a while...")
		revision, err = tap.search(ctx, primary, req.Formula, req.Version)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrGit, "search history")
		}
		if revision == "" {
			return nil, errors.Newf(errors.ErrVersionNotFound, "could not find a source version for %s %s", req.Formula, req.Version)
		}
		l.Logger.Info().Str("revision", revision).Msg("Found a version in commit")
	} else {
		l.Logger.Info().Str("revision", revision).Msg("Using source revision advertised by the registry")
	}

	if err := tap.checkout(revision); err != nil {
		return nil, errors.Wrap(err, errors.ErrGit, "checkout")
	}
	co := &Checkout{
		Revision: revision,
		restore: func() error {
			if err := tap.checkoutBranch(primary); err != nil {
				return errors.Wrap(err, errors.ErrGit, "restore tap")
			}
			return nil
		},
	}

	if err := l.resolveTarget(ctx, req, co); err != nil {
		if rerr := co.Restore(); rerr != nil {
			l.Logger.Error().Err(rerr).Str("tap", repoPath).Msg("Failed to restore tap")
		}
		return nil, err
	}
	return co, nil
}

// resolveTarget reads the formula at the checked-out revision and downloads
// its bottle for this platform when it has one.
func (l *Locator) resolveTarget(ctx context.Context, req Request, co *Checkout) error {
	info, err := l.Brew.Info(ctx, req.Formula)
	if err != nil {
		return err
	}

	bottle, ok := info.BottleFor(l.Platform)
	if !ok {
		l.Logger.Info().Msg("Did not find bottle in tap config, installing from source")
		co.Target = req.Formula
		return nil
	}

	l.Logger.Info().Str("url", bottle.URL).Msg("Found bottle in tap config")
	opts := []fetch.Option{fetch.WithDigest(bottle.SHA256)}
	if h := l.authHeaders(bottle.URL); h != nil {
		opts = append(opts, fetch.WithHeaders(h))
	}
	if err := l.Fetcher.Fetch(ctx, bottle.URL, req.CacheFile, opts...); err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			return errors.Wrap(err, errors.ErrHTTP, "download bottle from tap")
		}
		return err
	}
	co.Target = req.CacheFile
	co.Bottle = true
	return nil
}

func (l *Locator) authHeaders(raw string) map[string]string {
	if l.TokenHost == "" || l.Token == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != l.TokenHost {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + l.Token}
}
