// Package config resolves brewv settings from built-in defaults, an optional
// TOML file, a .env file and the process environment, in that order.
package config

import (
	"net/url"
	"os"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"brewv/internal/errors"
	"brewv/internal/registry"
)

const (
	DefaultRegistryURL = "https://ghcr.io/v2/homebrew/core"
	DefaultLogLevel    = "info"

	fileName = "brewv/config.toml"
)

type Config struct {
	LogLevel      string `toml:"log_level"`
	BrewBin       string `toml:"brew_bin"`
	RegistryURL   string `toml:"registry_url"`
	RegistryToken string `toml:"registry_token"`
	MirrorURL     string `toml:"mirror_url"`

	// Env is set on every brew subprocess.
	Env map[string]string `toml:"-"`
}

func Defaults() Config {
	return Config{
		LogLevel:      DefaultLogLevel,
		BrewBin:       "brew",
		RegistryURL:   DefaultRegistryURL,
		RegistryToken: registry.AnonymousToken,
		Env:           map[string]string{"HOMEBREW_NO_AUTO_UPDATE": "1"},
	}
}

func LoadEnv() {
	_ = godotenv.Load(".env")
}

// FilePath returns the config file found under the XDG config directories,
// or "" when there is none.
func FilePath() string {
	p, err := xdg.SearchConfigFile(fileName)
	if err != nil {
		return ""
	}
	return p
}

// LoadFile overlays the TOML file at path onto cfg. A missing file is not an
// error.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "read %s", path)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "parse %s", path)
	}
	return nil
}

// FromEnv overlays environment variables onto base.
func FromEnv(base Config) Config {
	c := base
	c.LogLevel = getenvDefault("BREWV_LOG_LEVEL", c.LogLevel)
	c.BrewBin = getenvDefault("BREW_BIN", c.BrewBin)
	c.RegistryURL = getenvDefault("BREWV_REGISTRY_URL", c.RegistryURL)
	c.RegistryToken = getenvDefault("BREWV_REGISTRY_TOKEN", c.RegistryToken)
	c.MirrorURL = getenvDefault("BREWV_MIRROR_URL", getenvDefault("HOMEBREW_BOTTLE_DOMAIN", c.MirrorURL))
	return c
}

// Load builds the effective configuration. The .env file must already have
// been loaded with LoadEnv if it is wanted.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if err := LoadFile(&cfg, path); err != nil {
		return Config{}, err
	}
	cfg = FromEnv(cfg)
	cfg.Env = Defaults().Env
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, errors.ErrConfig, "log level %q", c.LogLevel)
	}
	if c.BrewBin == "" {
		return errors.New(errors.ErrConfig, "BREW_BIN is empty")
	}
	if !absoluteURL(c.RegistryURL) {
		return errors.Newf(errors.ErrConfig, "registry url %q is not an absolute URL", c.RegistryURL)
	}
	if c.MirrorURL != "" && !absoluteURL(c.MirrorURL) {
		return errors.Newf(errors.ErrConfig, "mirror url %q is not an absolute URL", c.MirrorURL)
	}
	return nil
}

// TokenHost is the host registry credentials are sent to.
func (c Config) TokenHost() string {
	u, err := url.Parse(c.RegistryURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
