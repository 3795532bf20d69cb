// Package fetch downloads artifacts over HTTP, optionally verifying their
// sha256 before anything touches the destination.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"brewv/internal/hash"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4096

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status=%d body=%q", e.URL, e.StatusCode, e.Body)
}

// ClientError reports a 4xx status.
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type Client struct {
	HTTP   *http.Client
	Logger zerolog.Logger
}

type options struct {
	headers map[string]string
	digest  string
}

type Option func(*options)

func WithHeaders(h map[string]string) Option {
	return func(o *options) { o.headers = h }
}

// WithDigest makes Fetch reject content whose sha256 is not hex.
func WithDigest(hex string) Option {
	return func(o *options) { o.digest = hex }
}

// Get returns the body of url.
func (c Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	c.Logger.Info().Str("url", url).Msg("GET")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(b)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// Fetch downloads url to dest, replacing dest if it exists. With WithDigest
// a mismatch is returned as HASH_MISMATCH and dest is left untouched.
func (c Client) Fetch(ctx context.Context, url, dest string, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	body, err := c.Get(ctx, url, o.headers)
	if err != nil {
		return err
	}

	if o.digest != "" {
		if err := hash.Check(body, o.digest); err != nil {
			return err
		}
		c.Logger.Info().Str("url", url).Msg("SHA256 verified successfully")
	}

	return writeFile(dest, body)
}

func writeFile(dest string, body []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true
	return nil
}
