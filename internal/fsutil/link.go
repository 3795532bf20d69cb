package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// RelinkForce points linkPath at target through a path relative to
// linkPath's directory, replacing whatever linkPath was before. It returns
// the relative path written into the link.
func RelinkForce(target, linkPath string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(linkPath), target)
	if err != nil {
		return "", fmt.Errorf("relative path from %s to %s: %w", linkPath, target, err)
	}
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return "", fmt.Errorf("create link dir: %w", err)
	}

	err = os.Symlink(rel, linkPath)
	if os.IsExist(err) {
		if rmErr := os.Remove(linkPath); rmErr != nil {
			return "", fmt.Errorf("remove existing %s: %w", linkPath, rmErr)
		}
		err = os.Symlink(rel, linkPath)
	}
	if err != nil {
		return "", fmt.Errorf("symlink %s -> %s: %w", linkPath, rel, err)
	}
	return rel, nil
}
