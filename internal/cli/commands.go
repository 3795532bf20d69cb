package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"brewv/internal/errors"
	"brewv/internal/formula"
	"brewv/internal/fsutil"
	"brewv/internal/naming"
	"brewv/internal/report"
	"brewv/internal/switcher"
)

func (a *app) switchCmd() *cobra.Command {
	var slow, dryRun, jsonOut bool

	cmd := &cobra.Command{
		Use:   "switch <formula|user/repo/formula> [version]",
		Short: "Install a version of a formula and pin it",
		Long: `Install the given version of a formula, relink its binary and pin it.

Without a version, the versions brewv knows about are listed instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := formula.ParseRef(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrUsage, "parse formula")
			}
			if len(args) < 2 {
				a.logKnownVersions(cmd.Context(), ref)
				return errors.Newf(errors.ErrUsage, "a version of %s is required", ref)
			}

			s := a.switcher()
			req := switcher.Request{Ref: ref, Version: args[1], AllowSlow: slow}

			if dryRun {
				res, err := s.Plan(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOut {
					return report.WriteJSON(cmd.OutOrStdout(), res)
				}
				ev := a.logger.Info().Str("cache_file", res.Report.CacheFile).Bool("cache_hit", res.CacheHit)
				for _, c := range res.Candidates {
					ev = ev.Str(c.Registry, c.URL)
				}
				ev.Msg("Dry run, nothing was changed")
				return nil
			}

			rep, err := s.Switch(cmd.Context(), req)
			if jsonOut && rep != nil {
				if werr := report.WriteJSON(cmd.OutOrStdout(), rep); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&slow, "slow", false, "Allow searching the full homebrew/core history")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without changing anything")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Write the result as JSON to stdout")
	return cmd
}

func (a *app) versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <formula>",
		Short: "List versions with published or cached bottles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := formula.ParseRef(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrUsage, "parse formula")
			}
			published, cached, err := a.knownVersions(cmd.Context(), ref)
			if err != nil {
				return err
			}
			isCached := make(map[string]bool, len(cached))
			for _, v := range cached {
				isCached[v] = true
			}
			seen := make(map[string]bool, len(published))
			out := cmd.OutOrStdout()
			for _, v := range published {
				seen[v] = true
				if isCached[v] {
					fmt.Fprintf(out, "%s (cached)\n", v)
				} else {
					fmt.Fprintln(out, v)
				}
			}
			for _, v := range cached {
				if !seen[v] {
					fmt.Fprintf(out, "%s (cached)\n", v)
				}
			}
			return nil
		},
	}
}

// knownVersions returns the registry's versions of ref, which only exist for
// untapped formulae, and the versions already in brew's cache.
func (a *app) knownVersions(ctx context.Context, ref formula.Ref) (published, cached []string, err error) {
	if ref.Tap == "" {
		published, err = a.catalog().Versions(ctx, ref.Name)
		if err != nil {
			return nil, nil, err
		}
	}
	cacheDir, err := a.brewClient().CacheDir(ctx)
	if err != nil {
		return nil, nil, err
	}
	cached, err = fsutil.CachedVersions(cacheDir, ref.Name, a.platform, naming.BottleSuffix)
	if err != nil {
		return nil, nil, err
	}
	return published, cached, nil
}

func (a *app) logKnownVersions(ctx context.Context, ref formula.Ref) {
	published, cached, err := a.knownVersions(ctx, ref)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Could not list versions")
		return
	}
	if len(published) == 0 && len(cached) == 0 {
		a.logger.Info().Msg("No existing bottles were found")
		return
	}
	a.logger.Info().Strs("published", published).Strs("cached", cached).Msg("Known versions")
}
