// Package sgdb is a client for the SteamGridDB v2 API and its image CDN.
package sgdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/config"
	"github.com/gridskin/gridskin/internal/models"
)

// maxDownloadBytes caps a single CDN download (grids are a few MB at most).
const maxDownloadBytes = 32 << 20

// Game is one hit from the autocomplete search endpoint.
type Game struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Data    []Game `json:"data"`
}

type gridEntry struct {
	ID     int64   `json:"id"`
	Score  float64 `json:"score"`
	URL    string  `json:"url"`
	Thumb  string  `json:"thumb"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type gridsResponse struct {
	Success bool        `json:"success"`
	Data    []gridEntry `json:"data"`
}

// Client issues authenticated requests to the SteamGridDB API and downloads
// image bytes from its CDN. Transient failures (rate limiting, 5xx) are
// retried with exponential backoff up to MaxAttempts; auth and not-found
// failures propagate immediately.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	downloadClient *http.Client
	maxAttempts    int
	backoff        time.Duration
	dimensions     string
	logger         *zap.Logger
}

// NewClient creates a client from API config.
func NewClient(cfg *config.APIConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.Key,
		httpClient:     &http.Client{Timeout: cfg.Timeout()},
		downloadClient: &http.Client{Timeout: cfg.DownloadTimeout()},
		maxAttempts:    cfg.MaxAttempts,
		backoff:        cfg.Backoff(),
		dimensions:     cfg.GridDimensions,
		logger:         logger,
	}
}

// SearchGames queries the autocomplete endpoint for games matching name.
func (c *Client) SearchGames(ctx context.Context, name string) ([]Game, error) {
	endpoint := fmt.Sprintf("%s/search/autocomplete/%s", c.baseURL, url.PathEscape(name))
	body, err := c.getWithRetry(ctx, c.httpClient, endpoint, true)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.WrapErr(models.ErrDecode, err, "failed to parse search response")
	}
	return resp.Data, nil
}

// GameGrids returns static grid candidates for a game, filtered to the
// configured dimensions, in the ranking order the API returned them.
func (c *Client) GameGrids(ctx context.Context, gameID int64) ([]models.GridCandidate, error) {
	endpoint := fmt.Sprintf("%s/grids/game/%d?dimensions=%s&types=static",
		c.baseURL, gameID, url.QueryEscape(c.dimensions))
	body, err := c.getWithRetry(ctx, c.httpClient, endpoint, true)
	if err != nil {
		return nil, err
	}
	var resp gridsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.WrapErr(models.ErrDecode, err, "failed to parse grids response")
	}

	wantW, wantH := parseDimensions(c.dimensions)
	var candidates []models.GridCandidate
	for _, g := range resp.Data {
		if wantW > 0 && (g.Width != wantW || g.Height != wantH) {
			continue
		}
		candidates = append(candidates, models.GridCandidate{
			ID:       g.ID,
			ThumbURL: g.Thumb,
			FullURL:  g.URL,
			Width:    g.Width,
			Height:   g.Height,
			Score:    g.Score,
		})
	}
	return candidates, nil
}

// Search resolves a game name to grid candidates: the top autocomplete hit's
// grids, falling through to the next hit when a game has none.
func (c *Client) Search(ctx context.Context, name string) ([]models.GridCandidate, error) {
	games, err := c.SearchGames(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, models.Errf(models.ErrNotFound, "no games found for %q", name)
	}
	for _, game := range games {
		grids, err := c.GameGrids(ctx, game.ID)
		if err != nil {
			return nil, err
		}
		if len(grids) > 0 {
			c.logger.Debug("resolved game",
				zap.String("query", name),
				zap.String("game", game.Name),
				zap.Int("grids", len(grids)))
			return grids, nil
		}
	}
	return nil, models.Errf(models.ErrNotFound, "no grids available for %q", name)
}

// Download fetches raw image bytes from a CDN URL. CDN requests carry no
// Authorization header.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.getWithRetry(ctx, c.downloadClient, rawURL, false)
}

func (c *Client) getWithRetry(ctx context.Context, client *http.Client, rawURL string, authorized bool) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := c.get(ctx, client, rawURL, authorized)
		if err == nil {
			return body, nil
		}
		if !models.Retryable(err) || attempt >= c.maxAttempts {
			return nil, err
		}

		delay := c.backoff * (1 << (attempt - 1))
		var pe *models.PipelineError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			delay = pe.RetryAfter
		}
		c.logger.Warn("retrying request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, models.WrapErr(models.ErrTimeout, ctx.Err(), "request canceled: %s", rawURL)
		}
	}
}

func (c *Client) get(ctx context.Context, client *http.Client, rawURL string, authorized bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.WrapErr(models.ErrNetwork, err, "failed to build request")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(err, rawURL)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, models.WrapErr(models.ErrNetwork, err, "failed to read response body")
	}
	return body, nil
}

// classifyTransport maps transport-level failures to timeout or network kinds.
func classifyTransport(err error, rawURL string) error {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return models.WrapErr(models.ErrTimeout, err, "request timed out: %s", rawURL)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return models.WrapErr(models.ErrTimeout, err, "request timed out: %s", rawURL)
	}
	return models.WrapErr(models.ErrNetwork, err, "request failed: %s", rawURL)
}

// classifyStatus maps non-2xx responses onto the error taxonomy.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Errf(models.ErrAuthInvalid, "API key rejected (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return models.Errf(models.ErrNotFound, "resource not found: %s", resp.Request.URL)
	case resp.StatusCode == http.StatusTooManyRequests:
		pe := models.Errf(models.ErrRateLimited, "rate limited by API")
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return pe
	case resp.StatusCode >= 500:
		return models.Errf(models.ErrServer, "server error (status %d)", resp.StatusCode)
	default:
		return models.Errf(models.ErrNetwork, "unexpected status %d", resp.StatusCode)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func parseDimensions(dims string) (int, int) {
	parts := strings.SplitN(dims, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}
