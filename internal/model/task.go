package model

import (
	"fmt"
	"strconv"
)

// Mode identifies how a task resolves its comment source.
//
// Mode is derived from the task fields, never read from input. The first
// non-empty field wins in this order: URL, CommentID, FileName, Anime.
type Mode string

const (
	ModeNone      Mode = ""
	ModeURL       Mode = "url"
	ModeCommentID Mode = "commentId"
	ModeFileName  Mode = "fileName"
	ModeAnime     Mode = "anime"
)

// Format is the payload format requested from the backend.
type Format string

const (
	FormatDefault Format = ""
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
)

// ParseFormat validates a lowercase format string. Empty is allowed and means
// "use the run default".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDefault, FormatJSON, FormatXML:
		return Format(s), nil
	}
	return FormatDefault, fmt.Errorf("invalid format: %s", s)
}

// Extension returns the output file extension without the dot.
func (f Format) Extension() string {
	if f == FormatXML {
		return "xml"
	}
	return "json"
}

// Or returns f, or fallback when f is empty.
func (f Format) Or(fallback Format) Format {
	if f == FormatDefault {
		return fallback
	}
	return f
}

// Task is one unit of work.
//
// Tasks are created by a loader (or a front-end) and must not be modified
// once handed to the download manager.
type Task struct {
	// Index is the 1-based position in the original task list.
	Index int `json:"index"`

	// Name is an optional caller-supplied label. It has the highest
	// precedence when deriving the output base name.
	Name string `json:"name,omitempty"`

	// URL fetches comments for a video page directly.
	URL string `json:"url,omitempty"`

	// FileName is fuzzy-matched against the backend catalogue.
	FileName string `json:"fileName,omitempty"`

	// Anime and Episode drive an episode search.
	Anime   string `json:"anime,omitempty"`
	Episode string `json:"episode,omitempty"`

	// CommentID fetches comments by numeric ID. Zero means unset.
	CommentID int64 `json:"commentId,omitempty"`

	Format   Format `json:"format,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Mode computes the task's resolution mode.
func (t *Task) Mode() Mode {
	switch {
	case t.URL != "":
		return ModeURL
	case t.CommentID != 0:
		return ModeCommentID
	case t.FileName != "":
		return ModeFileName
	case t.Anime != "":
		return ModeAnime
	}
	return ModeNone
}

// Label returns a short human description used in logs.
func (t *Task) Label() string {
	switch t.Mode() {
	case ModeURL:
		return t.URL
	case ModeCommentID:
		return "comment " + strconv.FormatInt(t.CommentID, 10)
	case ModeFileName:
		return t.FileName
	case ModeAnime:
		if t.Episode != "" {
			return t.Anime + " " + t.Episode
		}
		return t.Anime
	}
	return fmt.Sprintf("task %d", t.Index)
}

// Enabled filters out disabled tasks, preserving order.
func Enabled(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Disabled {
			out = append(out, t)
		}
	}
	return out
}

// Resolution is what the resolver learned about a task before fetching.
//
// AnimeTitle and EpisodeTitle are only set when a match or search lookup
// was performed.
type Resolution struct {
	CommentID    int64  `json:"commentId,omitempty"`
	AnimeTitle   string `json:"animeTitle,omitempty"`
	EpisodeTitle string `json:"episodeTitle,omitempty"`
}

// HasTitles reports whether the lookup produced display titles.
func (r Resolution) HasTitles() bool {
	return r.AnimeTitle != "" || r.EpisodeTitle != ""
}

// InputError marks a task that can never succeed as given: missing fields,
// unsupported mode or a bad naming template. Input errors are not retried.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Inputf builds an InputError.
func Inputf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}
