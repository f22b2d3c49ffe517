// Package danmu binds the comment backend's HTTP routes.
//
// The package covers the four routes the downloader uses:
//
//  1. POST /api/v2/match to map a video file name to an episode
//  2. GET /api/v2/search/episodes to find an episode by anime title
//  3. GET /api/v2/comment/{id} to fetch comments by ID
//  4. GET /api/v2/comment?url= to fetch comments for a video page
//
// # Usage
//
// An API is shared by all workers; each worker binds it to its own
// connection session:
//
//	api := danmu.NewAPI(client, root)
//	conn := api.Bind(http.NewSession())
//	match, err := conn.Match(ctx, "[Group] Show - 01.mkv")
//
// # Episode IDs
//
// The backend sends episodeId as a number or a numeric string. EpisodeID
// decodes both and treats anything else as absent.
package danmu
