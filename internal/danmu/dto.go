package danmu

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// EpisodeID is a comment source identifier. The backend sends it either as
// a number or as a numeric string; anything else decodes to zero, which
// callers treat as "absent".
type EpisodeID int64

// UnmarshalJSON accepts numbers, numeric strings and null.
func (id *EpisodeID) UnmarshalJSON(data []byte) error {
	*id = 0

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*id = EpisodeID(v)
		} else if f, err := n.Float64(); err == nil {
			*id = EpisodeID(int64(f))
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			*id = EpisodeID(v)
		}
	}
	return nil
}

// MatchRequest is the body of POST /api/v2/match.
type MatchRequest struct {
	FileName      string `json:"fileName"`
	FileHash      string `json:"fileHash"`
	FileSize      int64  `json:"fileSize"`
	VideoDuration int64  `json:"videoDuration"`
	MatchMode     string `json:"matchMode"`
}

// NewMatchRequest builds a filename-only match request.
func NewMatchRequest(fileName string) MatchRequest {
	return MatchRequest{FileName: fileName, MatchMode: "fileNameOnly"}
}

// MatchResponse is the reply of POST /api/v2/match.
type MatchResponse struct {
	Success   bool        `json:"success"`
	IsMatched bool        `json:"isMatched"`
	Matches   []MatchItem `json:"matches"`
}

// MatchItem is one match candidate.
type MatchItem struct {
	EpisodeID    EpisodeID `json:"episodeId"`
	AnimeTitle   string    `json:"animeTitle"`
	EpisodeTitle string    `json:"episodeTitle"`
}

// Resolution returns the first match, or false if the response does not
// identify an episode.
func (r *MatchResponse) Resolution() (model.Resolution, bool) {
	if r == nil || !r.Success || !r.IsMatched || len(r.Matches) == 0 {
		return model.Resolution{}, false
	}
	m := r.Matches[0]
	if m.EpisodeID == 0 {
		return model.Resolution{}, false
	}
	return model.Resolution{
		CommentID:    int64(m.EpisodeID),
		AnimeTitle:   m.AnimeTitle,
		EpisodeTitle: m.EpisodeTitle,
	}, true
}

// SearchResponse is the reply of GET /api/v2/search/episodes.
type SearchResponse struct {
	Success bool          `json:"success"`
	Animes  []SearchAnime `json:"animes"`
}

// SearchAnime is one anime with its matching episodes.
type SearchAnime struct {
	AnimeTitle string          `json:"animeTitle"`
	Episodes   []SearchEpisode `json:"episodes"`
}

// SearchEpisode is one episode hit.
type SearchEpisode struct {
	EpisodeID    EpisodeID `json:"episodeId"`
	EpisodeTitle string    `json:"episodeTitle"`
}

// Resolution returns the first episode of the first anime, or false if
// there is none.
func (r *SearchResponse) Resolution() (model.Resolution, bool) {
	if r == nil || !r.Success || len(r.Animes) == 0 {
		return model.Resolution{}, false
	}
	a := r.Animes[0]
	if len(a.Episodes) == 0 || a.Episodes[0].EpisodeID == 0 {
		return model.Resolution{}, false
	}
	e := a.Episodes[0]
	return model.Resolution{
		CommentID:    int64(e.EpisodeID),
		AnimeTitle:   a.AnimeTitle,
		EpisodeTitle: e.EpisodeTitle,
	}, true
}

// Payload is a fetched comment document.
type Payload struct {
	Format model.Format
	Data   []byte
}

// Count returns the "count" field of a JSON payload object, if present.
func (p *Payload) Count() *int {
	if p.Format != model.FormatJSON {
		return nil
	}
	var env struct {
		Count *json.Number `json:"count"`
	}
	if err := json.Unmarshal(p.Data, &env); err != nil || env.Count == nil {
		return nil
	}
	v, err := env.Count.Int64()
	if err != nil {
		return nil
	}
	n := int(v)
	return &n
}

// Content returns the bytes to persist: XML verbatim, JSON re-indented with
// two spaces.
func (p *Payload) Content() []byte {
	if p.Format != model.FormatJSON {
		return p.Data
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, p.Data, "", "  "); err != nil {
		return p.Data
	}
	return buf.Bytes()
}
