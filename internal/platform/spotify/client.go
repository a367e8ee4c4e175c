package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalogstage/internal/catalog"

	"golang.org/x/time/rate"
)

const (
	apiBaseURL = "https://api.spotify.com/v1"

	// The max number of items the upstream returns per page.
	pageLimit = 50
)

// Client is a typed view over the upstream metadata API. Every call
// attaches the current bearer token, waits on a shared rate limiter,
// and retries 429/5xx responses with exponential backoff.
type Client struct {
	tokens     *TokenSource
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

func NewClient(tokens *TokenSource, rps int, maxRetries int) *Client {
	return &Client{
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:    apiBaseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

type artistItem struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	Followers  struct {
		Total int `json:"total"`
	} `json:"followers"`
}

type searchResponse struct {
	Artists struct {
		Items []artistItem `json:"items"`
	} `json:"artists"`
}

type albumPage struct {
	Items []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
		TotalTracks int    `json:"total_tracks"`
	} `json:"items"`
	Next string `json:"next"`
}

type trackPage struct {
	Items []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DurationMS  int    `json:"duration_ms"`
		TrackNumber int    `json:"track_number"`
	} `json:"items"`
	Next string `json:"next"`
}

// SearchArtist resolves an artist name to its catalog record. On
// ambiguous names the first item in upstream relevance order wins.
func (c *Client) SearchArtist(ctx context.Context, name string) (catalog.Artist, error) {
	u := fmt.Sprintf("%s/search?q=%s&type=artist&limit=1", c.baseURL, url.QueryEscape(name))

	var res searchResponse
	if err := c.get(ctx, u, &res); err != nil {
		return catalog.Artist{}, err
	}
	if len(res.Artists.Items) == 0 {
		return catalog.Artist{}, catalog.ErrArtistNotFound
	}

	top := res.Artists.Items[0]
	return catalog.Artist{
		ID:         top.ID,
		Name:       top.Name,
		Genres:     top.Genres,
		Popularity: top.Popularity,
		Followers:  top.Followers.Total,
	}, nil
}

// ListAlbums fetches every album of the artist, following pagination
// cursors until exhausted. Upstream surfaces the same release once per
// locale variant, so pages are deduplicated by album id.
func (c *Client) ListAlbums(ctx context.Context, artistID string) ([]catalog.Album, error) {
	next := fmt.Sprintf("%s/artists/%s/albums?limit=%d&include_groups=album,single",
		c.baseURL, url.PathEscape(artistID), pageLimit)

	var albums []catalog.Album
	seen := make(map[string]bool)
	for next != "" {
		var page albumPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			albums = append(albums, catalog.Album{
				ID:          it.ID,
				ArtistID:    artistID,
				Name:        it.Name,
				ReleaseDate: it.ReleaseDate,
				TotalTracks: it.TotalTracks,
			})
		}
		next = page.Next
	}
	return albums, nil
}

// ListTracks fetches every track of the album in upstream order.
// AlbumID is left empty; the orchestrator owns that linkage.
func (c *Client) ListTracks(ctx context.Context, albumID string) ([]catalog.Track, error) {
	next := fmt.Sprintf("%s/albums/%s/tracks?limit=%d", c.baseURL, url.PathEscape(albumID), pageLimit)

	var tracks []catalog.Track
	for next != "" {
		var page trackPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			tracks = append(tracks, catalog.Track{
				ID:          it.ID,
				Name:        it.Name,
				DurationMS:  it.DurationMS,
				TrackNumber: it.TrackNumber,
			})
		}
		next = page.Next
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, url string, target any) error {
	var lastErr error
	refreshed := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Backoff: 1s, 2s, 4s...
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		status, body, err := c.doOnce(ctx, url, target)
		switch {
		case err != nil:
			var authErr *catalog.AuthError
			if errors.As(err, &authErr) {
				return err
			}
			if status == http.StatusOK {
				return fmt.Errorf("decode response from %s: %w", url, err)
			}
			// The upstream never answered; still an upstream failure
			// once retries run out.
			lastErr = &catalog.UpstreamError{Err: err}
		case status == http.StatusOK:
			return nil
		case status == http.StatusUnauthorized && !refreshed:
			// doOnce dropped the stale token; go again with a fresh
			// one without consuming a backoff attempt.
			refreshed = true
			attempt--
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = &catalog.UpstreamError{Status: status, Body: body}
		default:
			return &catalog.UpstreamError{Status: status, Body: body}
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
}

// doOnce performs one authenticated GET. A 401 invalidates the token
// that was attached so the next attempt exchanges a fresh one.
func (c *Client) doOnce(ctx context.Context, url string, target any) (int, string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return resp.StatusCode, "", json.NewDecoder(resp.Body).Decode(target)
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(tok)
	}
	return resp.StatusCode, strings.TrimSpace(string(raw)), nil
}
