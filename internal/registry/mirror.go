package registry

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"brewv/internal/naming"
)

// Mirror fetches bottles from a flat file host that names them
// <formula>-<version>.<platform>.bottle.tar.gz. Mirrors publish no digest,
// so downloads are not verified.
type Mirror struct {
	BaseURL  string
	Platform string
	Fetcher  Fetcher
	Logger   zerolog.Logger
}

func (m *Mirror) Name() string { return "mirror" }

func (m *Mirror) BottleURL(formula, version string) string {
	return strings.TrimRight(m.BaseURL, "/") + "/" + naming.BottleFile(formula, version, m.Platform)
}

func (m *Mirror) CandidateURL(formula, version string) string {
	if m.BaseURL == "" {
		return ""
	}
	return m.BottleURL(formula, version)
}

func (m *Mirror) Download(ctx context.Context, formula, version, dest string) (Outcome, error) {
	if m.BaseURL == "" {
		m.Logger.Debug().Msg("No bottle mirror configured")
		return notFound(m.Name(), ""), nil
	}

	if err := m.Fetcher.Fetch(ctx, m.BottleURL(formula, version), dest); err != nil {
		if isHTTPStatus(err) {
			m.Logger.Warn().Err(err).Msg("Got HTTP error when attempting to download bottle")
			return notFound(m.Name(), ""), nil
		}
		return Outcome{}, err
	}
	m.Logger.Warn().Msg("Bottle successfully downloaded, but cannot verify SHA256")
	return found(m.Name()), nil
}
