// Package cli is the brewv command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"brewv/internal/brew"
	"brewv/internal/config"
	"brewv/internal/errors"
	"brewv/internal/fetch"
	"brewv/internal/history"
	"brewv/internal/logging"
	"brewv/internal/platform"
	"brewv/internal/registry"
	"brewv/internal/switcher"
)

// Set by the linker.
var (
	Version = "dev"
	Commit  = "none"
)

// Options are the process-level collaborators. Zero values mean the real
// thing.
type Options struct {
	Stdout     io.Writer
	Stderr     io.Writer
	LookPath   func(file string) (string, error)
	Platform   func(ctx context.Context) (string, error)
	ConfigFile string
	LogFile    string
	HTTPClient *http.Client
}

type app struct {
	opts      Options
	verbosity int

	cfg      config.Config
	logger   zerolog.Logger
	closer   io.Closer
	brewPath string
	platform string
}

// Execute runs the command line with args. Any returned error has already
// been reported on stderr; map it to an exit code with errors.ExitCode.
func Execute(args []string, opts Options) error {
	a := newApp(opts)
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.opts.Stdout)
	root.SetErr(a.opts.Stderr)

	err := root.ExecuteContext(context.Background())
	if err != nil {
		a.report(err)
	}
	return err
}

func newApp(opts Options) *app {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Platform == nil {
		opts.Platform = detectPlatform
	}
	logger, _, _ := logging.New(logging.Options{Level: config.DefaultLogLevel, Console: opts.Stderr})
	return &app{opts: opts, logger: logger}
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brewv",
		Short: "Pin a Homebrew formula to a specific version",
		Long: `brewv installs a given version of a Homebrew formula and pins it.

It uses a cached bottle when there is one, then tries the bottle registries,
and finally looks the version up in the formula's tap history.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase verbosity (-v DEBUG, -vv TRACE)")

	root.AddCommand(a.switchCmd())
	root.AddCommand(a.versionsCmd())
	root.AddCommand(a.versionCmd())
	return root
}

// setup loads configuration and checks brew and the platform before any
// command that talks to brew runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	config.LoadEnv()

	cfgFile := a.opts.ConfigFile
	if cfgFile == "" {
		cfgFile = config.FilePath()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logFile := a.opts.LogFile
	if logFile == "" {
		logFile = logging.DefaultFilePath()
	}
	logger, closer, err := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		Verbosity: a.verbosity,
		Console:   a.opts.Stderr,
		FilePath:  logFile,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrConfig, "set up logging")
	}
	a.logger, a.closer = logger, closer
	a.logger.Debug().Str("command", cmd.Name()).Str("config", cfgFile).Msg("Command started")

	brewPath, err := a.opts.LookPath(cfg.BrewBin)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "%s not found, is Homebrew installed", cfg.BrewBin)
	}
	a.brewPath = brewPath

	id, err := a.opts.Platform(cmd.Context())
	if err != nil {
		return err
	}
	a.platform = id
	a.logger.Debug().Str("brew", brewPath).Str("platform", id).Msg("Environment ready")
	return nil
}

func detectPlatform(ctx context.Context) (string, error) {
	info, err := platform.Detect(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrUnsupportedPlatform, "detect platform")
	}
	return platform.Identifier(info)
}

func (a *app) brewClient() brew.Client {
	return brew.Client{
		BrewPath: a.brewPath,
		Env:      a.cfg.Env,
		Stdout:   a.opts.Stderr,
		Logger:   logging.Component(a.logger, "brew"),
	}
}

func (a *app) fetcher() fetch.Client {
	return fetch.Client{HTTP: a.opts.HTTPClient, Logger: logging.Component(a.logger, "fetch")}
}

func (a *app) catalog() registry.Catalog {
	return registry.Catalog{
		BaseURL: a.cfg.RegistryURL,
		Token:   a.cfg.RegistryToken,
		Fetcher: a.fetcher(),
		Logger:  logging.Component(a.logger, "catalog"),
	}
}

func (a *app) switcher() *switcher.Switcher {
	bc := a.brewClient()
	f := a.fetcher()
	regLog := logging.Component(a.logger, "registry")

	return &switcher.Switcher{
		Brew: bc,
		Registries: registry.Chain{
			Logger: regLog,
			Clients: []registry.Client{
				&registry.OCI{BaseURL: a.cfg.RegistryURL, Token: a.cfg.RegistryToken, Platform: a.platform, Fetcher: f, Logger: regLog},
				&registry.Mirror{BaseURL: a.cfg.MirrorURL, Platform: a.platform, Fetcher: f, Logger: regLog},
			},
		},
		Locator: &history.Locator{
			Brew:      bc,
			Fetcher:   f,
			Platform:  a.platform,
			Logger:    logging.Component(a.logger, "history"),
			TokenHost: a.cfg.TokenHost(),
			Token:     a.cfg.RegistryToken,
		},
		Platform: a.platform,
		Logger:   logging.Component(a.logger, "switcher"),
	}
}

// report logs err once. A failed brew subprocess also gets its stderr
// copied through unchanged.
func (a *app) report(err error) {
	var re *brew.RunError
	if errors.As(err, &re) && re.Stderr != "" {
		_, _ = io.WriteString(a.opts.Stderr, re.Stderr)
	}
	a.logger.Error().Str("code", string(errors.CodeOf(err))).Msg(err.Error())
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No brew or platform needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "brewv version %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", Commit)
		},
	}
}
