// Package plan works out what a switch would do without doing it.
package plan

import (
	"brewv/internal/formula"
	"brewv/internal/fsutil"
	"brewv/internal/naming"
	"brewv/internal/registry"
	"brewv/internal/report"
)

// Candidates names the URLs the registry chain would try.
type Candidates interface {
	Candidates(formula, version string) []registry.Candidate
}

type Input struct {
	Ref        formula.Ref
	Version    string
	Platform   string
	CacheDir   string
	Registries Candidates
}

type Result struct {
	Report     report.SwitchReport  `json:"report"`
	CacheHit   bool                 `json:"cache_hit"`
	Candidates []registry.Candidate `json:"candidates,omitempty"`
}

// Build fills in the report skeleton and, unless the bottle is already
// cached, the registry URLs that would be tried. It only looks at the local
// filesystem.
func Build(in Input) Result {
	cacheFile := naming.CacheFile(in.CacheDir, in.Ref.Name, in.Version, in.Platform)

	res := Result{
		Report: report.SwitchReport{
			Ref:       in.Ref.String(),
			Formula:   in.Ref.Name,
			Tap:       in.Ref.Tap,
			Version:   in.Version,
			Platform:  in.Platform,
			CacheFile: cacheFile,
			Status:    report.StatusPlanned,
		},
		CacheHit: fsutil.FileExists(cacheFile),
	}
	if res.CacheHit {
		res.Report.Source = report.SourceCache
		res.Report.Target = cacheFile
		return res
	}
	if in.Registries != nil {
		res.Candidates = in.Registries.Candidates(in.Ref.Name, in.Version)
	}
	return res
}
