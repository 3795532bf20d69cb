package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"brewv/internal/brew"
	"brewv/internal/errors"
)

// FakeBrew stands in for the brew CLI. `info` is answered from the formula
// file currently checked out in TapRepo, so metadata follows checkouts the
// way it does with the real tool.
type FakeBrew struct {
	TapRepo     *Tap
	TapName     string
	FormulaFile string // relative to TapRepo.Path
	Platform    string
	Bottle      *brew.BottleFile // advertised when the formula has a bottle block

	CacheDirPath string
	PrefixPath   string

	InstallErr error
	OnInstall  func(target string)
	PinErr     error

	Calls []string
	Seen  []string // formula contents observed by each info call
}

func (f *FakeBrew) record(call string) { f.Calls = append(f.Calls, call) }

// Called reports how many recorded calls start with prefix.
func (f *FakeBrew) Called(prefix string) int {
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeBrew) Info(_ context.Context, name string) (*brew.FormulaInfo, error) {
	f.record("info " + name)
	info := &brew.FormulaInfo{Name: name, Tap: f.TapName}
	if f.TapRepo == nil || f.FormulaFile == "" {
		return info, nil
	}
	content, err := os.ReadFile(filepath.Join(f.TapRepo.Path, filepath.FromSlash(f.FormulaFile)))
	if err != nil {
		return info, nil
	}
	f.Seen = append(f.Seen, string(content))
	if f.Bottle != nil && strings.Contains(string(content), "bottle do") {
		info.Bottle.Stable = &brew.BottleSpec{Files: map[string]brew.BottleFile{f.Platform: *f.Bottle}}
	}
	return info, nil
}

func (f *FakeBrew) Repository(context.Context) (string, error) {
	f.record("--repository")
	if f.TapRepo == nil {
		return "", errors.New(errors.ErrSubprocess, "no brew repository")
	}
	return f.TapRepo.BrewRepo, nil
}

func (f *FakeBrew) CacheDir(context.Context) (string, error) {
	f.record("--cache")
	return f.CacheDirPath, nil
}

func (f *FakeBrew) Prefix(context.Context) (string, error) {
	f.record("--prefix")
	return f.PrefixPath, nil
}

func (f *FakeBrew) Tap(_ context.Context, tap string) error {
	f.record("tap " + tap)
	return nil
}

func (f *FakeBrew) Unlink(_ context.Context, name string) error {
	f.record("unlink " + name)
	return errors.New(errors.ErrSubprocess, "no such keg")
}

func (f *FakeBrew) Install(_ context.Context, target string) error {
	f.record("install " + target)
	if f.OnInstall != nil {
		f.OnInstall(target)
	}
	return f.InstallErr
}

func (f *FakeBrew) Pin(_ context.Context, name string) error {
	f.record("pin " + name)
	return f.PinErr
}
