package danmu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	dhttp "github.com/wintopic/iDanmu-Speed/internal/http"
	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// Backend routes, relative to the API root.
const (
	PathMatch          = "/api/v2/match"
	PathSearchEpisodes = "/api/v2/search/episodes"
	PathComment        = "/api/v2/comment"
)

// API binds the fixed danmu routes to a retrying client and an API root.
type API struct {
	client *dhttp.Client
	root   string
}

// NewAPI returns an API for root, e.g. "http://127.0.0.1:9321/token".
func NewAPI(client *dhttp.Client, root string) *API {
	return &API{client: client, root: root}
}

// Root returns the API root.
func (a *API) Root() string { return a.root }

// Bind returns a view of the API that sends every request over sess.
// Each worker binds its own session.
func (a *API) Bind(sess *dhttp.Session) *Conn {
	return &Conn{api: a, sess: sess}
}

// Conn is an API bound to one worker's session.
type Conn struct {
	api  *API
	sess *dhttp.Session
}

// Match fuzzy-matches a file name against the catalogue.
func (c *Conn) Match(ctx context.Context, fileName string) (*MatchResponse, error) {
	resp, err := c.api.client.Do(ctx, c.sess, dhttp.Request{
		Method:   http.MethodPost,
		URL:      c.api.root + PathMatch,
		Body:     NewMatchRequest(fileName),
		Expect:   dhttp.ExpectJSON,
		Endpoint: PathMatch,
	})
	if err != nil {
		return nil, err
	}

	var out MatchResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode match response: %w", err)
	}
	return &out, nil
}

// SearchEpisodes searches episodes by anime title and optional episode.
func (c *Conn) SearchEpisodes(ctx context.Context, anime, episode string) (*SearchResponse, error) {
	resp, err := c.api.client.Do(ctx, c.sess, dhttp.Request{
		Method:   http.MethodGet,
		URL:      c.api.root + PathSearchEpisodes,
		Query:    map[string]string{"anime": anime, "episode": episode},
		Expect:   dhttp.ExpectJSON,
		Endpoint: PathSearchEpisodes,
	})
	if err != nil {
		return nil, err
	}

	var out SearchResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// CommentByID fetches comments for a known comment ID.
func (c *Conn) CommentByID(ctx context.Context, id int64, format model.Format) (*Payload, error) {
	path := PathComment + "/" + url.PathEscape(strconv.FormatInt(id, 10))
	return c.fetch(ctx, path, map[string]string{"format": string(format)}, format)
}

// CommentByURL fetches comments for a video page URL.
func (c *Conn) CommentByURL(ctx context.Context, pageURL string, format model.Format) (*Payload, error) {
	return c.fetch(ctx, PathComment, map[string]string{"url": pageURL, "format": string(format)}, format)
}

func (c *Conn) fetch(ctx context.Context, path string, query map[string]string, format model.Format) (*Payload, error) {
	expect := dhttp.ExpectJSON
	if format == model.FormatXML {
		expect = dhttp.ExpectText
	}

	resp, err := c.api.client.Do(ctx, c.sess, dhttp.Request{
		Method:   http.MethodGet,
		URL:      c.api.root + path,
		Query:    query,
		Expect:   expect,
		Endpoint: PathComment,
	})
	if err != nil {
		return nil, err
	}
	return &Payload{Format: format, Data: resp.Body}, nil
}
