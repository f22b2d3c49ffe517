// Package endpoint checks that the configured danmu API is reachable before
// a run starts.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wintopic/iDanmu-Speed/internal/config"
	"github.com/wintopic/iDanmu-Speed/internal/logging"
)

const (
	probeTimeout  = 1200 * time.Millisecond
	probeBodySize = 256 << 10
	probeAgent    = "iDanmu-Speed-probe/1.0"
)

// ErrRemoteTarget is returned when mode "on" is used with a non-local URL.
var ErrRemoteTarget = errors.New("local API mode \"on\" requires a localhost/127.0.0.1 base URL")

// Handle is a checked endpoint. Stop releases anything Ensure started.
type Handle struct {
	Root string
	stop func()
}

// Stop releases the endpoint. It is safe to call on a nil Handle.
func (h *Handle) Stop() {
	if h != nil && h.stop != nil {
		h.stop()
	}
}

// Prober checks endpoints over HTTP.
type Prober struct {
	client *http.Client
}

// NewProber returns a Prober with a short timeout.
func NewProber() *Prober {
	return &Prober{client: &http.Client{Timeout: probeTimeout}}
}

// Ensure makes sure the API at root is usable, according to mode.
//
//   - off: nothing is checked and a nil Handle is returned
//   - auto: only local targets are checked
//   - on: the target must be local and is checked
//
// A local target is probed at <root>/api/config and then <root>/.
func (p *Prober) Ensure(ctx context.Context, mode, baseURL, root string) (*Handle, error) {
	local := config.IsLocalBaseURL(baseURL)

	switch mode {
	case config.LocalAPIOff:
		return nil, nil
	case config.LocalAPIOn:
		if !local {
			return nil, ErrRemoteTarget
		}
	default:
		if !local {
			return nil, nil
		}
	}

	probe := logging.RedactURL(root + "/api/config")
	if p.Healthy(ctx, root) {
		log.Debug().Str("probe", probe).Msg("Local danmu API is up")
		return &Handle{Root: root}, nil
	}
	return nil, fmt.Errorf("local danmu API is not reachable at %s", probe)
}

// Healthy reports whether any probe URL under root answers like the danmu
// API, whatever its status code.
func (p *Prober) Healthy(ctx context.Context, root string) bool {
	for _, u := range []string{root + "/api/config", root + "/"} {
		status, body, err := p.get(ctx, u)
		if err != nil {
			log.Debug().Err(err).Str("url", logging.RedactURL(u)).Msg("Probe failed")
			continue
		}
		if LooksLikeDanmuAPI(status, body) {
			return true
		}
	}
	return false
}

func (p *Prober) get(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", probeAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, probeBodySize))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(data), nil
}

// LooksLikeDanmuAPI recognises the API by the shape of its responses.
func LooksLikeDanmuAPI(status int, body string) bool {
	lowered := strings.ToLower(strings.TrimSpace(body))
	if lowered == "" {
		return false
	}

	hasErrorCode := strings.Contains(lowered, `"errorcode"`)
	switch {
	case hasErrorCode && strings.Contains(lowered, `"success"`):
		return true
	case strings.Contains(lowered, `"sourceorderarr"`), strings.Contains(lowered, `"envvarconfig"`):
		return true
	case strings.Contains(lowered, "logvar") && strings.Contains(lowered, "<html"):
		return true
	case (status == http.StatusUnauthorized || status == http.StatusForbidden) &&
		strings.Contains(lowered, "unauthorized") && hasErrorCode:
		return true
	}
	return false
}
