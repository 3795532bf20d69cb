// Package platform builds the bottle tag identifying the current OS,
// architecture and macOS release, e.g. "arm64_sonoma" or "x86_64_linux".
package platform

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"brewv/internal/errors"
)

const (
	Darwin = "darwin"
	Linux  = "linux"
)

// macOS release (normalized, see NormalizeMacVersion) to marketing name.
var macCodenames = map[string]string{
	"10.13": "High Sierra",
	"10.14": "Mojave",
	"10.15": "Catalina",
	"10.16": "Big Sur",
	"11":    "Big Sur",
	"12":    "Monterey",
	"13":    "Ventura",
	"14":    "Sonoma",
	"15":    "Sequoia",
	"26":    "Tahoe",
}

// Info is the raw input to Identifier.
type Info struct {
	OS      string // runtime.GOOS
	Version string // OS release, e.g. "14.2.1"; only consulted on darwin
	Machine string // uname -m, e.g. "arm64", "x86_64", "aarch64"
}

// Detect fills Info for the running host.
func Detect(ctx context.Context) (Info, error) {
	info := Info{OS: runtime.GOOS}

	machine, err := host.KernelArch()
	if err != nil {
		return info, fmt.Errorf("detect machine architecture: %w", err)
	}
	info.Machine = machine

	if info.OS == Darwin {
		_, _, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			return info, fmt.Errorf("detect macOS version: %w", err)
		}
		info.Version = version
	}
	return info, nil
}

// NormalizeMacVersion reduces a macOS release to the key used by the
// codename table. Releases up to 10.x keep major.minor; from 11 on only the
// major number identifies the release.
func NormalizeMacVersion(version string) string {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if major, err := strconv.Atoi(parts[0]); err == nil && major >= 11 {
		return parts[0]
	}
	if len(parts) >= 2 {
		return parts[0] + "." + parts[1]
	}
	return parts[0]
}

// IsSupportedMacVersion reports whether version has a known codename.
func IsSupportedMacVersion(version string) bool {
	_, ok := macCodenames[NormalizeMacVersion(version)]
	return ok
}

// Identifier returns the bottle tag for info. It is a pure function of its
// input.
func Identifier(info Info) (string, error) {
	switch info.OS {
	case Darwin:
		name, ok := macCodenames[NormalizeMacVersion(info.Version)]
		if !ok {
			return "", errors.Newf(errors.ErrUnsupportedOSVersion, "macOS %q is not supported", info.Version)
		}
		codename := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
		if info.Machine == "arm64" {
			return "arm64_" + codename, nil
		}
		return codename, nil
	case Linux:
		if info.Machine == "" {
			return "", errors.New(errors.ErrUnsupportedPlatform, "unknown machine architecture")
		}
		return info.Machine + "_linux", nil
	default:
		return "", errors.Newf(errors.ErrUnsupportedPlatform, "system %q is not supported", info.OS)
	}
}
