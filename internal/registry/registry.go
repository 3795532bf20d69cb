// Package registry turns a (formula, version) pair into a bottle download
// against the hosting services that publish bottles.
//
// Absence is an expected answer and is reported as an Outcome, never an
// error. Errors returned from Download are fatal: transport failures and
// digest mismatches.
package registry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"brewv/internal/fetch"
)

// Outcome of a download attempt. When Found is false, Hint may carry the
// source revision the registry advertised for the requested version.
type Outcome struct {
	Found  bool
	Source string
	Hint   string
}

func found(source string) Outcome { return Outcome{Found: true, Source: source} }

func notFound(source, hint string) Outcome { return Outcome{Source: source, Hint: hint} }

// Client downloads a bottle for formula at version to dest.
type Client interface {
	Name() string
	Download(ctx context.Context, formula, version, dest string) (Outcome, error)
}

// Fetcher is the HTTP side of a registry client.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Fetch(ctx context.Context, url, dest string, opts ...fetch.Option) error
}

// Chain tries each client in order and stops at the first success.
type Chain struct {
	Clients []Client
	Logger  zerolog.Logger
}

// Download returns the first found outcome. When every client misses, the
// outcome carries the most recent non-empty hint.
func (c Chain) Download(ctx context.Context, formula, version, dest string) (Outcome, error) {
	var last Outcome
	for _, client := range c.Clients {
		c.Logger.Info().Str("registry", client.Name()).Msg("Trying bottle download")

		out, err := client.Download(ctx, formula, version, dest)
		if err != nil {
			return Outcome{}, err
		}
		if out.Found {
			return out, nil
		}
		// Deliberately sticky: a later client without a hint, like the
		// mirror, must not drop the revision an earlier one advertised.
		if out.Hint != "" {
			last.Hint = out.Hint
		}
		last.Source = out.Source
	}
	return last, nil
}

// tapScoped is implemented by clients that only hold bottles for some taps.
type tapScoped interface {
	ServesTap(tap string) bool
}

// ForTap returns the chain without the clients that cannot hold bottles for
// formulae of tap. An empty tap is the default one.
func (c Chain) ForTap(tap string) Chain {
	out := Chain{Logger: c.Logger}
	for _, client := range c.Clients {
		if s, ok := client.(tapScoped); ok && !s.ServesTap(tap) {
			c.Logger.Debug().Str("registry", client.Name()).Str("tap", tap).Msg("Registry does not serve tap, skipping")
			continue
		}
		out.Clients = append(out.Clients, client)
	}
	return out
}

// Candidate is a URL a client would try, for dry runs.
type Candidate struct {
	Registry string `json:"registry"`
	URL      string `json:"url"`
}

type describer interface {
	CandidateURL(formula, version string) string
}

// Candidates lists, in order, the URL each client would request. Clients
// that are disabled or cannot name a URL up front are left out.
func (c Chain) Candidates(formula, version string) []Candidate {
	var out []Candidate
	for _, client := range c.Clients {
		d, ok := client.(describer)
		if !ok {
			continue
		}
		if u := d.CandidateURL(formula, version); u != "" {
			out = append(out, Candidate{Registry: client.Name(), URL: u})
		}
	}
	return out
}

// isHTTPStatus reports whether err is a non-2xx response rather than a
// transport failure.
func isHTTPStatus(err error) bool {
	var se *fetch.StatusError
	return errors.As(err, &se)
}
