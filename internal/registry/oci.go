package registry

import (
	"bytes"
	"context"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/rs/zerolog"

	"brewv/internal/brew"
	"brewv/internal/fetch"
	"brewv/internal/naming"
)

const (
	indexMediaType = "application/vnd.oci.image.index.v1+json"

	refNameAnnotation      = "org.opencontainers.image.ref.name"
	revisionAnnotation     = "org.opencontainers.image.revision"
	bottleDigestAnnotation = "sh.brew.bottle.digest"

	// AnonymousToken is what ghcr.io accepts for public pulls.
	AnonymousToken = "QQ=="
)

// OCI fetches bottles from an OCI registry laid out like ghcr.io/homebrew:
// one image index per formula version, one manifest per platform.
type OCI struct {
	BaseURL  string // e.g. https://ghcr.io/v2/homebrew/core
	Token    string
	Platform string
	Fetcher  Fetcher
	Logger   zerolog.Logger
}

func (c *OCI) Name() string { return "ghcr" }

// ServesTap reports whether tap's bottles live here. The registry publishes
// homebrew/core only, under bare formula names.
func (c *OCI) ServesTap(tap string) bool {
	return tap == "" || tap == brew.CoreTap
}

func (c *OCI) authHeaders() map[string]string {
	token := c.Token
	if token == "" {
		token = AnonymousToken
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// ManifestURL is the image index URL for formula at version.
func (c *OCI) ManifestURL(formula, version string) string {
	return c.repoURL(formula) + "/manifests/" + version
}

func (c *OCI) CandidateURL(formula, version string) string {
	return c.ManifestURL(formula, version)
}

func (c *OCI) repoURL(formula string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + RepositoryName(formula)
}

// RepositoryName maps a formula name to its OCI repository name.
func RepositoryName(formula string) string {
	return strings.NewReplacer("@", "/", "+", "x").Replace(formula)
}

func (c *OCI) Download(ctx context.Context, formula, version, dest string) (Outcome, error) {
	headers := c.authHeaders()
	headers["Accept"] = indexMediaType

	body, err := c.Fetcher.Get(ctx, c.ManifestURL(formula, version), headers)
	if err != nil {
		if isHTTPStatus(err) {
			c.Logger.Warn().Err(err).Msg("Got HTTP error when attempting to fetch bottle manifest")
			return notFound(c.Name(), ""), nil
		}
		return Outcome{}, err
	}

	index, err := v1.ParseIndexManifest(bytes.NewReader(body))
	if err != nil {
		c.Logger.Warn().Err(err).Msg("Bottle manifest is not an image index")
		return notFound(c.Name(), ""), nil
	}

	hint := index.Annotations[revisionAnnotation]
	digest := findDigest(index, naming.RefName(version, c.Platform))
	if digest == "" {
		c.Logger.Info().Str("platform", c.Platform).Msg("No digest found in manifest")
		return notFound(c.Name(), hint), nil
	}

	blobURL := c.repoURL(formula) + "/blobs/sha256:" + digest
	err = c.Fetcher.Fetch(ctx, blobURL, dest,
		fetch.WithHeaders(c.authHeaders()),
		fetch.WithDigest(digest),
	)
	if err != nil {
		if isHTTPStatus(err) {
			c.Logger.Warn().Err(err).Msg("Got HTTP error when attempting to download bottle")
			return notFound(c.Name(), hint), nil
		}
		return Outcome{}, err
	}
	return found(c.Name()), nil
}

func findDigest(index *v1.IndexManifest, refName string) string {
	for _, m := range index.Manifests {
		if m.Annotations[refNameAnnotation] == refName {
			return m.Annotations[bottleDigestAnnotation]
		}
	}
	return ""
}
