package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewv/internal/errors"
	"brewv/internal/fetch"
	"brewv/internal/hash"
)

const platformTag = "x86_64_linux"

var otherDigest = strings.Repeat("ab", 32)

// ghcr mimics the parts of ghcr.io/v2/homebrew/core brewv talks to.
type ghcr struct {
	t         *testing.T
	formula   string
	version   string
	revision  string
	refName   string
	blob      []byte
	blobSHA   string // advertised digest; defaults to the blob's real digest
	blobCode  int
	tags      []string
	manifests int32
	blobs     int32
}

func (g *ghcr) digest() string {
	if g.blobSHA != "" {
		return g.blobSHA
	}
	return hash.Sum(g.blob)
}

func (g *ghcr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	repo := "/" + RepositoryName(g.formula)
	switch {
	case r.URL.Path == repo+"/manifests/"+g.version:
		atomic.AddInt32(&g.manifests, 1)
		assert.Equal(g.t, "Bearer QQ==", r.Header.Get("Authorization"))
		assert.Equal(g.t, indexMediaType, r.Header.Get("Accept"))

		index := map[string]interface{}{
			"schemaVersion": 2,
			"mediaType":     indexMediaType,
			"manifests": []map[string]interface{}{
				{
					"mediaType": "application/vnd.oci.image.manifest.v1+json",
					"digest":    "sha256:" + otherDigest,
					"size":      100,
					"annotations": map[string]string{
						refNameAnnotation:      g.version + ".arm64_sonoma",
						bottleDigestAnnotation: otherDigest,
					},
				},
				{
					"mediaType": "application/vnd.oci.image.manifest.v1+json",
					"digest":    "sha256:" + otherDigest,
					"size":      100,
					"annotations": map[string]string{
						refNameAnnotation:      g.refName,
						bottleDigestAnnotation: g.digest(),
					},
				},
			},
		}
		if g.revision != "" {
			index["annotations"] = map[string]string{revisionAnnotation: g.revision}
		}
		w.Header().Set("Content-Type", indexMediaType)
		assert.NoError(g.t, json.NewEncoder(w).Encode(index))
	case r.URL.Path == repo+"/blobs/sha256:"+g.digest():
		atomic.AddInt32(&g.blobs, 1)
		if g.blobCode != 0 {
			w.WriteHeader(g.blobCode)
			return
		}
		_, _ = w.Write(g.blob)
	case r.URL.Path == repo+"/tags/list" && g.tags != nil:
		assert.NoError(g.t, json.NewEncoder(w).Encode(tagList{Name: g.formula, Tags: g.tags}))
	default:
		http.NotFound(w, r)
	}
}

func newOCI(url string) *OCI {
	return &OCI{
		BaseURL:  url,
		Platform: platformTag,
		Fetcher:  fetch.Client{Logger: zerolog.Nop()},
		Logger:   zerolog.Nop(),
	}
}

func TestOCIDownloadFound(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "1.2.3", refName: "1.2.3." + platformTag, blob: []byte("bottle"), revision: "deadbeef"}
	srv := httptest.NewServer(g)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "foo.bottle.tar.gz")
	out, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", dest)
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "ghcr", out.Source)

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "bottle", string(b))
}

func TestOCINoMatchingPlatformCarriesHint(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "1.2.3", refName: "1.2.3.aarch64_linux", blob: []byte("bottle"), revision: "deadbeef"}
	srv := httptest.NewServer(g)
	defer srv.Close()

	out, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Equal(t, "deadbeef", out.Hint)
	assert.Equal(t, int32(0), g.blobs)
}

func TestOCINoMatchingPlatformWithoutRevision(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "1.2.3", refName: "1.2.3.aarch64_linux", blob: []byte("bottle")}
	srv := httptest.NewServer(g)
	defer srv.Close()

	out, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Empty(t, out.Hint)
}

func TestOCIManifestMissing(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "9.9.9"}
	srv := httptest.NewServer(g)
	defer srv.Close()

	out, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Empty(t, out.Hint)
}

func TestOCIBlobHTTPErrorKeepsHint(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "1.2.3", refName: "1.2.3." + platformTag, blob: []byte("bottle"), revision: "cafe", blobCode: http.StatusForbidden}
	srv := httptest.NewServer(g)
	defer srv.Close()

	out, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Equal(t, "cafe", out.Hint)
}

func TestOCIDigestMismatchIsFatal(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", version: "1.2.3", refName: "1.2.3." + platformTag, blob: []byte("tampered"), blobSHA: hash.Sum([]byte("original"))}
	srv := httptest.NewServer(g)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "f")
	_, err := newOCI(srv.URL).Download(context.Background(), "foo", "1.2.3", dest)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrHashMismatch))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOCIVersionedFormulaRepository(t *testing.T) {
	g := &ghcr{t: t, formula: "python@3.11", version: "3.11.4", refName: "3.11.4." + platformTag, blob: []byte("py")}
	srv := httptest.NewServer(g)
	defer srv.Close()

	assert.Equal(t, "python/3.11", RepositoryName("python@3.11"))
	assert.Equal(t, "libstdcxx", RepositoryName("libstdc++"))

	out, err := newOCI(srv.URL).Download(context.Background(), "python@3.11", "3.11.4", filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	assert.True(t, out.Found)
}

func TestMirrorDownload(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/bottles/foo-1.2.3."+platformTag+".bottle.tar.gz" {
			_, _ = w.Write([]byte("mirror-bottle"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := &Mirror{BaseURL: srv.URL + "/bottles/", Platform: platformTag, Fetcher: fetch.Client{Logger: zerolog.Nop()}, Logger: zerolog.Nop()}

	dest := filepath.Join(t.TempDir(), "f")
	out, err := m.Download(context.Background(), "foo", "1.2.3", dest)
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "mirror", out.Source)

	out, err = m.Download(context.Background(), "foo", "0.0.1", dest)
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Empty(t, out.Hint)
	assert.Len(t, paths, 2)
}

func TestMirrorWithoutBaseURL(t *testing.T) {
	m := &Mirror{Platform: platformTag, Fetcher: panicFetcher{}, Logger: zerolog.Nop()}
	out, err := m.Download(context.Background(), "foo", "1.2.3", "unused")
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestCatalogVersions(t *testing.T) {
	g := &ghcr{t: t, formula: "foo", tags: []string{"1.2.3", "1.3.0"}}
	srv := httptest.NewServer(g)
	defer srv.Close()

	c := Catalog{BaseURL: srv.URL, Fetcher: fetch.Client{Logger: zerolog.Nop()}, Logger: zerolog.Nop()}
	got, err := c.Versions(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3", "1.3.0"}, got)

	got, err = c.Versions(context.Background(), "bar")
	require.NoError(t, err)
	assert.Empty(t, got)
}

type panicFetcher struct{}

func (panicFetcher) Get(context.Context, string, map[string]string) ([]byte, error) {
	panic("unexpected request")
}

func (panicFetcher) Fetch(context.Context, string, string, ...fetch.Option) error {
	panic("unexpected request")
}

// stubClient returns a fixed outcome and records that it ran.
type stubClient struct {
	name  string
	out   Outcome
	err   error
	calls *[]string
}

func (s stubClient) Name() string { return s.name }

func (s stubClient) Download(context.Context, string, string, string) (Outcome, error) {
	*s.calls = append(*s.calls, s.name)
	s.out.Source = s.name
	return s.out, s.err
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	ch := Chain{Logger: zerolog.Nop(), Clients: []Client{
		stubClient{name: "a", out: Outcome{Hint: "h1"}, calls: &calls},
		stubClient{name: "b", out: Outcome{Found: true}, calls: &calls},
		stubClient{name: "c", out: Outcome{Found: true}, calls: &calls},
	}}

	out, err := ch.Download(context.Background(), "foo", "1", "dest")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "b", out.Source)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChainHintPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		hints []string
		want  string
	}{
		{"primary hint survives hintless secondary", []string{"H", ""}, "H"},
		{"later hint overwrites earlier", []string{"H1", "H2"}, "H2"},
		{"no hints", []string{"", ""}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			var clients []Client
			for i, h := range tt.hints {
				clients = append(clients, stubClient{name: fmt.Sprint(i), out: Outcome{Hint: h}, calls: &calls})
			}
			out, err := Chain{Clients: clients, Logger: zerolog.Nop()}.Download(context.Background(), "foo", "1", "dest")
			require.NoError(t, err)
			assert.False(t, out.Found)
			assert.Equal(t, tt.want, out.Hint)
			assert.Len(t, calls, len(tt.hints))
		})
	}
}

func TestChainPropagatesErrors(t *testing.T) {
	var calls []string
	boom := errors.New(errors.ErrHashMismatch, "bad digest")
	ch := Chain{Logger: zerolog.Nop(), Clients: []Client{
		stubClient{name: "a", err: boom, calls: &calls},
		stubClient{name: "b", out: Outcome{Found: true}, calls: &calls},
	}}

	_, err := ch.Download(context.Background(), "foo", "1", "dest")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, calls)
}

func TestChainCandidates(t *testing.T) {
	var calls []string
	ch := Chain{Clients: []Client{
		&OCI{BaseURL: "https://ghcr.io/v2/homebrew/core/", Platform: platformTag},
		&Mirror{Platform: platformTag},
		&Mirror{BaseURL: "https://mirror.example", Platform: platformTag},
		stubClient{name: "stub", calls: &calls},
	}}

	got := ch.Candidates("python@3.9", "3.9.1")
	assert.Equal(t, []Candidate{
		{Registry: "ghcr", URL: "https://ghcr.io/v2/homebrew/core/python/3.9/manifests/3.9.1"},
		{Registry: "mirror", URL: "https://mirror.example/python@3.9-3.9.1.x86_64_linux.bottle.tar.gz"},
	}, got)
	assert.Empty(t, calls)
}

func TestChainForTap(t *testing.T) {
	var calls []string
	ch := Chain{Logger: zerolog.Nop(), Clients: []Client{
		&OCI{Platform: platformTag},
		&Mirror{Platform: platformTag},
		stubClient{name: "stub", calls: &calls},
	}}

	names := func(c Chain) []string {
		var out []string
		for _, client := range c.Clients {
			out = append(out, client.Name())
		}
		return out
	}
	assert.Equal(t, []string{"ghcr", "mirror", "stub"}, names(ch.ForTap("")))
	assert.Equal(t, []string{"ghcr", "mirror", "stub"}, names(ch.ForTap("homebrew/core")))
	assert.Equal(t, []string{"mirror", "stub"}, names(ch.ForTap("someuser/sometap")))
	assert.Len(t, ch.Clients, 3, "the original chain is untouched")
}
