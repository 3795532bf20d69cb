package naming

import (
	"fmt"
	"path/filepath"
)

const BottleSuffix = "bottle.tar.gz"

// RefName is the OCI tag of a bottle inside a formula's image index,
// e.g. "1.2.3.arm64_sonoma".
func RefName(version, platform string) string {
	return fmt.Sprintf("%s.%s", version, platform)
}

// BottleFile is the file name mirrors publish bottles under.
func BottleFile(formula, version, platform string) string {
	return fmt.Sprintf("%s-%s.%s.%s", formula, version, platform, BottleSuffix)
}

// CacheFile is where brew itself would cache the bottle, so a switch that
// already downloaded it once never does again.
func CacheFile(cacheDir, formula, version, platform string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%s--%s.%s.%s", formula, version, platform, BottleSuffix))
}

// CellarBinary is the versioned binary a relink points at.
func CellarBinary(prefix, formula, version string) string {
	return filepath.Join(prefix, "Cellar", formula, version, "bin", formula)
}

// LinkedBinary is the generic binary path brew links into.
func LinkedBinary(prefix, formula string) string {
	return filepath.Join(prefix, "bin", formula)
}
