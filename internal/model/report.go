package model

import (
	"sort"
	"sync"
	"time"
)

// ItemStatus tags an item result.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// Exit codes of a run.
const (
	ExitOK        = 0
	ExitSetup     = 1
	ExitFailed    = 2
	ExitCancelled = 130
)

// ItemResult is the outcome of a single task.
type ItemResult struct {
	Index  int        `json:"index"`
	Status ItemStatus `json:"status"`

	// Success fields.
	Mode         Mode   `json:"mode,omitempty"`
	Output       string `json:"output,omitempty"`
	Count        *int   `json:"count,omitempty"`
	Format       Format `json:"format,omitempty"`
	CommentID    int64  `json:"commentId,omitempty"`
	AnimeTitle   string `json:"animeTitle,omitempty"`
	EpisodeTitle string `json:"episodeTitle,omitempty"`

	// Failure field.
	Error string `json:"error,omitempty"`
}

// Report is the aggregate result of a run, persisted as download-report.json.
//
// Workers append items concurrently through Add; Finish sorts them by task
// index so the persisted order never depends on completion order.
type Report struct {
	RunID      string       `json:"runId"`
	StartedAt  string       `json:"startedAt"`
	EndedAt    string       `json:"endedAt,omitempty"`
	APIRoot    string       `json:"apiRoot"`
	InputPath  string       `json:"inputPath,omitempty"`
	OutputDir  string       `json:"outputDir"`
	NamingRule string       `json:"namingRule"`
	Total      int          `json:"total"`
	Success    int          `json:"success"`
	Failed     int          `json:"failed"`
	Cancelled  bool         `json:"cancelled"`
	Items      []ItemResult `json:"items"`

	mu sync.Mutex
}

// Timestamp formats t the way the report stores it.
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Add records an item result and updates the counters.
func (r *Report) Add(item ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Items = append(r.Items, item)
	if item.Status == ItemSuccess {
		r.Success++
	} else {
		r.Failed++
	}
}

// Finish sorts items by index and stamps the end of the run.
func (r *Report) Finish(cancelled bool, endedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Index < r.Items[j].Index
	})
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	r.Cancelled = cancelled
	r.EndedAt = Timestamp(endedAt)
}

// Counts returns success and failure totals.
func (r *Report) Counts() (success, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Success, r.Failed
}

// ExitCode maps the report to the process exit status.
func (r *Report) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.Cancelled:
		return ExitCancelled
	case r.Failed > 0:
		return ExitFailed
	}
	return ExitOK
}
