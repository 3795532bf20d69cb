// Package switcher pins a formula to a given version: it finds an artifact
// for that version, installs it, relinks the binary and pins the formula.
package switcher

import (
	"context"

	"github.com/rs/zerolog"

	"brewv/internal/errors"
	"brewv/internal/formula"
	"brewv/internal/fsutil"
	"brewv/internal/hash"
	"brewv/internal/history"
	"brewv/internal/naming"
	"brewv/internal/plan"
	"brewv/internal/registry"
	"brewv/internal/report"
)

// Brew is the part of the brew CLI a switch drives.
type Brew interface {
	Tap(ctx context.Context, tap string) error
	CacheDir(ctx context.Context) (string, error)
	Prefix(ctx context.Context) (string, error)
	Unlink(ctx context.Context, formula string) error
	Install(ctx context.Context, target string) error
	Pin(ctx context.Context, formula string) error
}

// Registries yields the registry chain able to serve a tap's formulae.
type Registries interface {
	ForTap(tap string) registry.Chain
}

type Locator interface {
	Locate(ctx context.Context, req history.Request) (*history.Checkout, error)
}

type Switcher struct {
	Brew       Brew
	Registries Registries
	Locator    Locator
	Platform   string
	Logger     zerolog.Logger
}

type Request struct {
	Ref       formula.Ref
	Version   string
	AllowSlow bool
}

func (r Request) validate() error {
	if r.Ref.Name == "" {
		return errors.New(errors.ErrUsage, "missing formula")
	}
	if r.Version == "" {
		return errors.Newf(errors.ErrUsage, "missing version for %s", r.Ref)
	}
	return nil
}

// Plan reports what Switch would do for req. It only asks brew for its
// cache directory and looks at the filesystem.
func (s *Switcher) Plan(ctx context.Context, req Request) (plan.Result, error) {
	if err := req.validate(); err != nil {
		return plan.Result{}, err
	}
	cacheDir, err := s.Brew.CacheDir(ctx)
	if err != nil {
		return plan.Result{}, err
	}
	return plan.Build(plan.Input{
		Ref:        req.Ref,
		Version:    req.Version,
		Platform:   s.Platform,
		CacheDir:   cacheDir,
		Registries: s.Registries.ForTap(req.Ref.Tap),
	}), nil
}

// Switch installs req.Version of the formula and pins it. The returned
// report is non-nil whenever the request was valid, and records the failure
// when err is non-nil.
func (s *Switcher) Switch(ctx context.Context, req Request) (rep *report.SwitchReport, err error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	name := req.Ref.Name
	log := s.Logger.With().Str("formula", name).Str("version", req.Version).Logger()

	rep = &report.SwitchReport{
		Ref:      req.Ref.String(),
		Formula:  name,
		Tap:      req.Ref.Tap,
		Version:  req.Version,
		Platform: s.Platform,
		Status:   report.StatusPlanned,
	}
	defer func() {
		if err != nil {
			rep.Fail(err)
		}
	}()

	if req.Ref.Tap != "" {
		log.Info().Str("tap", req.Ref.Tap).Msg("Tapping")
		if err = s.Brew.Tap(ctx, req.Ref.Tap); err != nil {
			return rep, err
		}
	}

	log.Info().Msg("Switching to version")
	p, err := s.Plan(ctx, req)
	if err != nil {
		return rep, err
	}
	*rep = p.Report

	if p.CacheHit {
		log.Info().Str("path", rep.CacheFile).Msg("Found bottle in cache")
	} else {
		log.Info().Msg("Not in cache: finding bottle to download")
		var out registry.Outcome
		out, err = s.Registries.ForTap(req.Ref.Tap).Download(ctx, name, req.Version, rep.CacheFile)
		if err != nil {
			return rep, err
		}
		if out.Found {
			rep.Source = out.Source
			rep.Target = rep.CacheFile
		} else {
			log.Warn().Msg("No bottle was found in any registry")
			var co *history.Checkout
			co, err = s.Locator.Locate(ctx, history.Request{
				Formula:   name,
				Version:   req.Version,
				Hint:      out.Hint,
				AllowSlow: req.AllowSlow,
				CacheFile: rep.CacheFile,
			})
			if err != nil {
				return rep, err
			}
			defer func() {
				if rerr := co.Restore(); rerr != nil {
					if err == nil {
						err = rerr
						return
					}
					log.Error().Err(rerr).Msg("Failed to restore tap")
				}
			}()
			rep.Source = report.SourceHistory
			rep.Target = co.Target
			rep.Revision = co.Revision
		}
	}

	if fsutil.FileExists(rep.Target) {
		if sum, herr := hash.FileSHA256(rep.Target); herr == nil {
			rep.Sha256 = sum
		}
	}

	if err = s.install(ctx, log, name, rep.Target); err != nil {
		return rep, err
	}
	if err = s.relink(ctx, log, rep); err != nil {
		return rep, err
	}

	log.Info().Msg("Pinning")
	if err = s.Brew.Pin(ctx, name); err != nil {
		return rep, err
	}

	rep.Status = report.StatusInstalled
	log.Info().Str("source", rep.Source).Msg("Switched")
	return rep, nil
}

func (s *Switcher) install(ctx context.Context, log zerolog.Logger, name, target string) error {
	if err := s.Brew.Unlink(ctx, name); err != nil {
		log.Debug().Err(err).Msg("Unlink failed, continuing")
	}
	log.Info().Str("target", target).Msg("Installing")
	return s.Brew.Install(ctx, target)
}

func (s *Switcher) relink(ctx context.Context, log zerolog.Logger, rep *report.SwitchReport) error {
	prefix, err := s.Brew.Prefix(ctx)
	if err != nil {
		return err
	}
	rep.LinkPath = naming.LinkedBinary(prefix, rep.Formula)
	target := naming.CellarBinary(prefix, rep.Formula, rep.Version)

	log.Debug().Str("link", rep.LinkPath).Str("target", target).Msg("Linking homebrew binary")
	rel, err := fsutil.RelinkForce(target, rep.LinkPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "relink")
	}
	rep.LinkTarget = rel
	return nil
}
