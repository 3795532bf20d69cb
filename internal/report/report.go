// Package report describes the outcome of a switch, for humans and for
// --json.
package report

import (
	"encoding/json"
	"io"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusInstalled Status = "installed"
	StatusFailed    Status = "failed"
)

// Where the installed artifact came from. Registry sources use the
// registry's own name.
const (
	SourceCache   = "cache"
	SourceHistory = "history"
)

type SwitchReport struct {
	Ref      string `json:"ref"`
	Formula  string `json:"formula"`
	Tap      string `json:"tap,omitempty"`
	Version  string `json:"version"`
	Platform string `json:"platform"`

	CacheFile string `json:"cache_file"`
	Source    string `json:"source,omitempty"`
	Target    string `json:"target,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Sha256    string `json:"sha256,omitempty"`

	LinkPath   string `json:"link_path,omitempty"`
	LinkTarget string `json:"link_target,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Fail marks the report failed with err.
func (r *SwitchReport) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
