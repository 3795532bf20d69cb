package formula

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// TapRepoPath returns where brew keeps the git checkout of tap:
// <brew --repository>/Library/Taps/<user>/homebrew-<repo>.
func TapRepoPath(brewRepository, tap string) (string, error) {
	user, repo, err := SplitTap(tap)
	if err != nil {
		return "", err
	}
	return filepath.Join(brewRepository, "Library", "Taps", user, "homebrew-"+repo), nil
}

// CandidatePaths lists, in lookup order, the slash-separated paths a
// formula file may have inside a tap: the sharded Formula/<letter>/ layout,
// the flat Formula/ layout and the tap root.
func CandidatePaths(formulaName string) []string {
	filename := formulaName + ".rb"
	out := make([]string, 0, 3)
	if formulaName != "" {
		first := strings.ToLower(string([]rune(formulaName)[0]))
		out = append(out, path.Join("Formula", first, filename))
	}
	return append(out, path.Join("Formula", filename), filename)
}

// FormulaPathInRepo returns the first candidate path for which exists
// reports true.
func FormulaPathInRepo(formulaName string, exists func(rel string) bool) (string, error) {
	for _, p := range CandidatePaths(formulaName) {
		if exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("formula file not found for %s (tried %s)", formulaName, strings.Join(CandidatePaths(formulaName), ", "))
}
