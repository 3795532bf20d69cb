package registry

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

// Catalog lists the bottle versions an OCI registry knows for a formula.
type Catalog struct {
	BaseURL string
	Token   string
	Fetcher Fetcher
	Logger  zerolog.Logger
}

type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Versions returns the registry's tags for formula. A registry that answers
// with an HTTP error simply knows no versions.
func (c Catalog) Versions(ctx context.Context, formula string) ([]string, error) {
	token := c.Token
	if token == "" {
		token = AnonymousToken
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + RepositoryName(formula) + "/tags/list"

	body, err := c.Fetcher.Get(ctx, url, map[string]string{"Authorization": "Bearer " + token})
	if err != nil {
		if isHTTPStatus(err) {
			c.Logger.Debug().Err(err).Msg("Version listing unavailable")
			return nil, nil
		}
		return nil, err
	}

	var tl tagList
	if err := json.Unmarshal(body, &tl); err != nil {
		c.Logger.Warn().Err(err).Msg("Could not parse version listing")
		return nil, nil
	}
	return tl.Tags, nil
}
