package airquality

import (
	"time"
)

// CreationDateField is the record field carrying the publication timestamp.
const CreationDateField = "datacreationdate"

// CreationDateLayout is the layout of CreationDateField values.
const CreationDateLayout = "2006-01-02 15:04"

// Record maps field ids to their textual values. Records are written once
// and never mutated.
type Record map[string]string

// Page is one response from the source: the schema it described and the
// records starting at Offset.
type Page struct {
	Fields  []string
	Records []Record
	Offset  int
}

// FetchState tracks a single run's progress through the remote collection.
// Offset and Fetched only grow.
type FetchState struct {
	Headers []string
	Offset  int
	Fetched int
	Target  int
}

// Remaining returns how many records are still wanted.
func (s FetchState) Remaining() int {
	if s.Fetched >= s.Target {
		return 0
	}
	return s.Target - s.Fetched
}

// Gap describes a page that failed and was skipped.
type Gap struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// StopReason explains why the page loop ended.
type StopReason string

const (
	StopTargetReached       StopReason = "target_reached"
	StopEndOfData           StopReason = "end_of_data"
	StopConsecutiveFailures StopReason = "consecutive_failures"
	StopCanceled            StopReason = "canceled"
)

// Report is the outcome of one fetch run, optionally enriched by the
// post-processing steps of the collector.
type Report struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   time.Time  `json:"finishedAt"`
	Latest       time.Time  `json:"latestRecord"`
	StartOffset  int        `json:"startOffset"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      time.Time  `json:"endDate"`
	OutputPath   string     `json:"outputPath"`
	Target       int        `json:"target"`
	Fetched      int        `json:"fetched"`
	FailedPages  int        `json:"failedPages"`
	Gaps         []Gap      `json:"gaps,omitempty"`
	Complete     bool       `json:"complete"`
	StopReason   StopReason `json:"stopReason"`
	CleanedPath  string     `json:"cleanedPath,omitempty"`
	BinnedPath   string     `json:"binnedPath,omitempty"`
	BinsPath     string     `json:"binsPath,omitempty"`
	ArchivedKeys []string   `json:"archivedKeys,omitempty"`
}
