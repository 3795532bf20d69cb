package formula

import (
	"fmt"
	"strings"
)

// Ref is a formula name, optionally qualified by the tap it lives in.
type Ref struct {
	Tap  string // "user/repo", empty for an unqualified name
	Name string
}

func (r Ref) String() string {
	if r.Tap == "" {
		return r.Name
	}
	return r.Tap + "/" + r.Name
}

// ParseRef accepts "formula" or "user/repo/formula".
func ParseRef(ref string) (Ref, error) {
	ref = strings.TrimSpace(ref)
	i := strings.LastIndex(ref, "/")
	if i < 0 {
		if ref == "" {
			return Ref{}, fmt.Errorf("empty formula reference")
		}
		return Ref{Name: ref}, nil
	}

	tap, name := ref[:i], ref[i+1:]
	if name == "" {
		return Ref{}, fmt.Errorf("invalid ref %q, missing formula name", ref)
	}
	if _, _, err := SplitTap(tap); err != nil {
		return Ref{}, fmt.Errorf("invalid ref %q, expected user/repo/formula", ref)
	}
	return Ref{Tap: tap, Name: name}, nil
}

// SplitTap splits "user/repo" into its parts.
func SplitTap(tap string) (user, repo string, err error) {
	parts := strings.Split(tap, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid tap %q, expected user/repo", tap)
	}
	return parts[0], parts[1], nil
}
