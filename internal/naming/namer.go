// Package naming computes output file names for downloaded comment files.
//
// A name is derived in three steps: a base name from the task and what the
// resolver learned, a rendered naming rule over a fixed field set, and a
// reduction of the rendered text to one sanitized path segment.
package naming

import (
	"fmt"
	"strings"

	ioutils "github.com/wintopic/iDanmu-Speed/internal/io"
	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// Input is everything a name may depend on.
type Input struct {
	Task       model.Task
	Mode       model.Mode
	Format     model.Format
	Resolution model.Resolution
}

// BaseName picks the most descriptive name available.
//
// Precedence: the task's explicit name, then the resolved titles, then a
// mode-specific fallback, then "task-<index>".
func BaseName(in Input) string {
	t := in.Task
	if t.Name != "" {
		return t.Name
	}

	if r := in.Resolution; r.HasTitles() {
		return or(r.AnimeTitle, "unknown") + "-" + or(r.EpisodeTitle, "episode")
	}

	switch {
	case in.Mode == model.ModeURL && t.URL != "":
		return t.URL
	case in.Mode == model.ModeCommentID && t.CommentID != 0:
		return fmt.Sprintf("comment-%d", t.CommentID)
	case in.Mode == model.ModeFileName && t.FileName != "":
		return t.FileName
	case in.Mode == model.ModeAnime && t.Anime != "":
		return t.Anime + "-" + or(t.Episode, "all")
	}
	return fmt.Sprintf("task-%d", t.Index)
}

// Stem renders the template for in and reduces it to a safe file stem
// without extension.
func (t *Template) Stem(in Input) (string, error) {
	base := BaseName(in)

	rendered, err := t.execute(fieldValues(in, base))
	if err != nil {
		return "", err
	}

	stem := strings.TrimSpace(rendered)
	if stem == "" {
		stem = base
	}
	stem = lastSegment(stem)

	lower := strings.ToLower(stem)
	if strings.HasSuffix(lower, ".xml") || strings.HasSuffix(lower, ".json") {
		stem = stem[:strings.LastIndexByte(stem, '.')]
	}
	if stem == "" {
		stem = base
	}
	return ioutils.SanitizeFileName(stem), nil
}

func fieldValues(in Input, base string) map[string]value {
	t := in.Task

	commentID := strValue("")
	switch {
	case in.Resolution.CommentID != 0:
		commentID = intValue(in.Resolution.CommentID)
	case t.CommentID != 0:
		commentID = intValue(t.CommentID)
	}

	return map[string]value{
		"index":        intValue(int64(t.Index)),
		"base":         strValue(base),
		"name":         strValue(t.Name),
		"mode":         strValue(string(in.Mode)),
		"ext":          strValue(in.Format.Extension()),
		"url":          strValue(t.URL),
		"anime":        strValue(t.Anime),
		"episode":      strValue(t.Episode),
		"commentId":    commentID,
		"animeTitle":   strValue(in.Resolution.AnimeTitle),
		"episodeTitle": strValue(in.Resolution.EpisodeTitle),
	}
}

// lastSegment returns the final non-empty path segment, treating both
// slash kinds as separators.
func lastSegment(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
