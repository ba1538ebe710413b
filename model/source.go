// Package model defines the typed views over store rows: sources, video
// tasks and worker liveness records, plus the status lifecycle they share.
package model

import "strconv"

// Source is a coarse work item: a channel, playlist or single video URL
// awaiting expansion into video tasks.
type Source struct {
	ID         string
	URL        string
	Status     string
	ClaimedBy  string
	ClaimedAt  string
	RetryCount int
	LastError  string

	// Meta carries caller-defined columns (Name, Accent, ...) untouched.
	Meta map[string]string
}

// SourceFromRow decodes a store row into a Source. Unknown columns land in
// Meta.
func SourceFromRow(row map[string]string) *Source {
	s := &Source{
		ID:        row[ColID],
		URL:       row[ColURL],
		Status:    row[ColStatus],
		ClaimedBy: row[ColClaimedBy],
		ClaimedAt: row[ColClaimedAt],
		LastError: row[ColLastError],
		Meta:      make(map[string]string),
	}
	s.RetryCount, _ = strconv.Atoi(row[ColRetryCount])

	for k, v := range row {
		if !sourceCoreColumns[k] {
			s.Meta[k] = v
		}
	}

	return s
}

// ToRow encodes the source back into a store row, metadata included.
func (s *Source) ToRow() map[string]string {
	row := make(map[string]string, 7+len(s.Meta))
	for k, v := range s.Meta {
		row[k] = v
	}

	row[ColID] = s.ID
	row[ColURL] = s.URL
	row[ColStatus] = s.Status
	row[ColClaimedBy] = s.ClaimedBy
	row[ColClaimedAt] = s.ClaimedAt
	row[ColRetryCount] = strconv.Itoa(s.RetryCount)
	row[ColLastError] = s.LastError

	return row
}

// NewSourceRow builds a pending source row for insertion. The ID cell is
// left empty for the store to assign.
func NewSourceRow(url string, meta map[string]string) map[string]string {
	row := make(map[string]string, 7+len(meta))
	for k, v := range meta {
		row[k] = v
	}

	row[ColID] = ""
	row[ColURL] = url
	row[ColStatus] = StatusPending
	row[ColClaimedBy] = ""
	row[ColClaimedAt] = ""
	row[ColRetryCount] = "0"
	row[ColLastError] = ""

	return row
}
