package domain

import "strings"

// Job is the per-source scrape job payload. It carries the source id only; the worker resolves
// the rest from its own registry.
type Job struct {
	SourceID string `json:"sourceId"`
}

// Valid reports whether the job names a source.
func (j Job) Valid() bool {
	return strings.TrimSpace(j.SourceID) != ""
}
