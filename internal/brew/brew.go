package brew

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"brewv/internal/errors"
)

// CoreTap is the main curated tap whose history is too large to search by
// default.
const CoreTap = "homebrew/core"

type Client struct {
	BrewPath string            // "brew" or "/opt/homebrew/bin/brew"
	Env      map[string]string // added to every invocation
	Stdout   io.Writer         // receives install output when set
	Logger   zerolog.Logger
}

// FormulaInfo is the part of `brew info --json=v1` brewv reads.
type FormulaInfo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Tap      string `json:"tap"`
	Versions struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Installed []struct {
		Version string `json:"version"`
	} `json:"installed"`
	Pinned bool `json:"pinned"`
	Bottle struct {
		Stable *BottleSpec `json:"stable"`
	} `json:"bottle"`
}

type BottleSpec struct {
	RootURL string                `json:"root_url"`
	Files   map[string]BottleFile `json:"files"`
}

type BottleFile struct {
	Cellar string `json:"cellar"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// BottleFor returns the bottle published for platform, if any.
func (f *FormulaInfo) BottleFor(platform string) (BottleFile, bool) {
	if f == nil || f.Bottle.Stable == nil {
		return BottleFile{}, false
	}
	b, ok := f.Bottle.Stable.Files[platform]
	if !ok || b.URL == "" {
		return BottleFile{}, false
	}
	return b, true
}

// IsCore reports whether the formula comes from the main curated tap.
func (f *FormulaInfo) IsCore() bool {
	return f.Tap == CoreTap
}

func (c Client) bin() string {
	if c.BrewPath == "" {
		return "brew"
	}
	return c.BrewPath
}

// output runs brew and returns its trimmed stdout.
func (c Client) output(ctx context.Context, args ...string) (string, error) {
	c.Logger.Debug().Str("command", c.bin()).Strs("args", args).Msg("Executing command")
	stdout, _, _, err := Run(ctx, c.bin(), args, "", c.Env)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrSubprocess, "brew %s", strings.Join(args, " "))
	}
	return strings.TrimSpace(stdout), nil
}

// Info returns the metadata brew currently resolves for formula.
func (c Client) Info(ctx context.Context, formula string) (*FormulaInfo, error) {
	out, err := c.output(ctx, "info", "--json=v1", formula)
	if err != nil {
		return nil, err
	}
	return parseInfo([]byte(out), formula)
}

func parseInfo(raw []byte, formula string) (*FormulaInfo, error) {
	// brew may print a banner before the JSON. Parse from the first '['.
	i := bytes.IndexByte(raw, '[')
	if i < 0 {
		return nil, fmt.Errorf("no JSON found in brew info output for %q", formula)
	}

	var parsed []FormulaInfo
	if err := json.Unmarshal(raw[i:], &parsed); err != nil {
		return nil, fmt.Errorf("parse brew info json: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("brew info returned no formula for %q", formula)
	}
	return &parsed[0], nil
}

func (c Client) CacheDir(ctx context.Context) (string, error) {
	return c.output(ctx, "--cache")
}

func (c Client) Prefix(ctx context.Context) (string, error) {
	return c.output(ctx, "--prefix")
}

func (c Client) Repository(ctx context.Context) (string, error) {
	return c.output(ctx, "--repository")
}

func (c Client) Tap(ctx context.Context, tap string) error {
	_, err := c.output(ctx, "tap", tap)
	return err
}

func (c Client) Unlink(ctx context.Context, formula string) error {
	_, err := c.output(ctx, "unlink", formula)
	return err
}

func (c Client) Pin(ctx context.Context, formula string) error {
	_, err := c.output(ctx, "pin", formula)
	return err
}

// Install runs `brew install target`, streaming stdout. A failure keeps the
// subprocess stderr reachable through errors.As(*RunError) and carries the
// exit code as an *InstallError.
func (c Client) Install(ctx context.Context, target string) error {
	args := []string{"install", target}
	c.Logger.Debug().Str("command", c.bin()).Strs("args", args).Msg("Executing command")

	var err error
	if c.Stdout != nil {
		_, _, _, err = RunStreaming(ctx, c.bin(), args, "", c.Env, c.Stdout)
	} else {
		_, _, _, err = Run(ctx, c.bin(), args, "", c.Env)
	}
	if err != nil {
		var re *RunError
		if errors.As(err, &re) {
			err = &InstallError{RunError: re}
		}
		return errors.Wrapf(err, errors.ErrSubprocess, "brew install %s", target)
	}
	return nil
}
