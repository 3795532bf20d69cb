package hash

import (
	_ "crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"

	"brewv/internal/errors"
)

// Sum returns the hex-encoded sha256 of content.
func Sum(content []byte) string {
	return digest.SHA256.FromBytes(content).Encoded()
}

func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return d.Encoded(), nil
}

// Verify reports whether content hashes to expected. Expected may carry a
// "sha256:" prefix and upper-case hex.
func Verify(content []byte, expected string) bool {
	return Sum(content) == normalize(expected)
}

// Check is Verify returning a HASH_MISMATCH error that names both digests.
func Check(content []byte, expected string) error {
	got := Sum(content)
	want := normalize(expected)
	if got != want {
		return errors.Newf(errors.ErrHashMismatch, "sha256 mismatch: expected %s, got %s", want, got).
			WithDetail("expected", want).
			WithDetail("actual", got)
	}
	return nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "sha256:")
}
