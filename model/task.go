package model

import "strconv"

// VideoTask is one unit of downloadable work, derived from a source or
// inserted directly.
type VideoTask struct {
	ID         string
	SourceID   string
	URL        string
	Status     string
	Duration   int64 // seconds, 0 = unknown
	ClaimedBy  string
	ClaimedAt  string
	RetryCount int
	LastError  string
}

// TaskFromRow decodes a store row into a VideoTask.
func TaskFromRow(row map[string]string) *VideoTask {
	t := &VideoTask{
		ID:        row[ColID],
		SourceID:  row[ColSourceID],
		URL:       row[ColURL],
		Status:    row[ColStatus],
		ClaimedBy: row[ColClaimedBy],
		ClaimedAt: row[ColClaimedAt],
		LastError: row[ColLastError],
	}
	t.Duration, _ = strconv.ParseInt(row[ColDuration], 10, 64)
	t.RetryCount, _ = strconv.Atoi(row[ColRetryCount])
	return t
}

// ToRow encodes the task back into a store row.
func (t *VideoTask) ToRow() map[string]string {
	row := make(map[string]string, 9)
	row[ColID] = t.ID
	row[ColSourceID] = t.SourceID
	row[ColURL] = t.URL
	row[ColStatus] = t.Status
	row[ColDuration] = formatDuration(t.Duration)
	row[ColClaimedBy] = t.ClaimedBy
	row[ColClaimedAt] = t.ClaimedAt
	row[ColRetryCount] = strconv.Itoa(t.RetryCount)
	row[ColLastError] = t.LastError
	return row
}

// NewTaskRow builds a pending task row for insertion, tagged with its source
// back-reference and inherited metadata. SourceID is written here once and
// never updated afterwards.
func NewTaskRow(sourceID, url string, duration int64, status string, inherited map[string]string) map[string]string {
	row := make(map[string]string, 9+len(inherited))
	for k, v := range inherited {
		row[k] = v
	}

	row[ColID] = ""
	row[ColSourceID] = sourceID
	row[ColURL] = url
	row[ColStatus] = status
	row[ColDuration] = formatDuration(duration)
	row[ColClaimedBy] = ""
	row[ColClaimedAt] = ""
	row[ColRetryCount] = "0"
	row[ColLastError] = ""

	return row
}

func formatDuration(d int64) string {
	if d <= 0 {
		return ""
	}
	return strconv.FormatInt(d, 10)
}
