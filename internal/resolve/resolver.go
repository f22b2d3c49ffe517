// Package resolve turns a task into a fetched comment payload.
//
// Every task ends in exactly one fetch. url and commentId tasks fetch
// directly; fileName and anime tasks first perform one lookup to learn the
// comment ID and display titles.
package resolve

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wintopic/iDanmu-Speed/internal/danmu"
	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// Backend is the set of API calls the resolver needs. *danmu.Conn
// implements it.
type Backend interface {
	Match(ctx context.Context, fileName string) (*danmu.MatchResponse, error)
	SearchEpisodes(ctx context.Context, anime, episode string) (*danmu.SearchResponse, error)
	CommentByID(ctx context.Context, id int64, format model.Format) (*danmu.Payload, error)
	CommentByURL(ctx context.Context, pageURL string, format model.Format) (*danmu.Payload, error)
}

// NotFoundError is returned when a lookup does not identify an episode.
type NotFoundError struct {
	Route string
	Query string
}

func (e *NotFoundError) Error() string {
	return e.Route + " not found: " + e.Query
}

// Result is a resolved and fetched task.
type Result struct {
	Mode       model.Mode
	Format     model.Format
	Resolution model.Resolution
	Payload    *danmu.Payload
}

// Resolver resolves tasks against a Backend.
type Resolver struct {
	defaultFormat model.Format
}

// New returns a Resolver that uses defaultFormat for tasks without one.
func New(defaultFormat model.Format) *Resolver {
	if defaultFormat == model.FormatDefault {
		defaultFormat = model.FormatXML
	}
	return &Resolver{defaultFormat: defaultFormat}
}

// Resolve performs at most one lookup and exactly one fetch for task.
// A task without a usable mode fails with *model.InputError before any
// request is made.
func (r *Resolver) Resolve(ctx context.Context, b Backend, task model.Task) (*Result, error) {
	mode := task.Mode()
	if mode == model.ModeNone {
		return nil, model.Inputf("task missing supported fields: url/commentId/fileName/anime")
	}

	res := &Result{Mode: mode, Format: task.Format.Or(r.defaultFormat)}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case model.ModeURL:
		payload, err := b.CommentByURL(ctx, task.URL, res.Format)
		if err != nil {
			return nil, err
		}
		res.Payload = payload
		return res, nil

	case model.ModeCommentID:
		res.Resolution.CommentID = task.CommentID

	case model.ModeFileName:
		match, err := b.Match(ctx, task.FileName)
		if err != nil {
			return nil, err
		}
		resolution, ok := match.Resolution()
		if !ok {
			return nil, &NotFoundError{Route: "match", Query: task.FileName}
		}
		res.Resolution = resolution

	case model.ModeAnime:
		search, err := b.SearchEpisodes(ctx, task.Anime, task.Episode)
		if err != nil {
			return nil, err
		}
		resolution, ok := search.Resolution()
		if !ok {
			query := task.Anime
			if task.Episode != "" {
				query += " " + task.Episode
			}
			return nil, &NotFoundError{Route: "search/episodes", Query: query}
		}
		res.Resolution = resolution
	}

	if mode != model.ModeCommentID {
		log.Debug().
			Int("task", task.Index).
			Str("mode", string(mode)).
			Int64("comment_id", res.Resolution.CommentID).
			Msg("Resolved comment ID")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := b.CommentByID(ctx, res.Resolution.CommentID, res.Format)
	if err != nil {
		return nil, err
	}
	res.Payload = payload
	return res, nil
}
