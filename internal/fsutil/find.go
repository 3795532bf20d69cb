package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileExists reports whether path names a regular file.
func FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// CachedVersions lists versions of formula for platform that already sit in
// cacheDir as "<formula>--<version>.<platform>.<suffix>", newest file first.
func CachedVersions(cacheDir, formula, platform, suffix string) ([]string, error) {
	prefix := formula + "--"
	tail := "." + platform + "." + suffix

	matches, err := filepath.Glob(filepath.Join(cacheDir, prefix+"*"+tail))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	type fi struct {
		version string
		t       time.Time
	}
	list := make([]fi, 0, len(matches))
	for _, p := range matches {
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		name := filepath.Base(p)
		v := strings.TrimSuffix(strings.TrimPrefix(name, prefix), tail)
		if v == "" {
			continue
		}
		list = append(list, fi{version: v, t: st.ModTime()})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].t.After(list[j].t) })

	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.version)
	}
	return out, nil
}
