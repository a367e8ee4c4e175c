package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"catalogstage/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(apiURL string) *Client {
	ts := &TokenSource{
		clientID:     "id",
		clientSecret: "secret",
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		token:        "cached-token",
		expiresAt:    time.Now().Add(time.Hour),
	}
	return &Client{
		tokens:     ts,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    apiURL,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
}

func TestClient_SearchArtist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "artist", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer cached-token", r.Header.Get("Authorization"))

		switch r.URL.Query().Get("q") {
		case "Queen":
			fmt.Fprint(w, `{"artists":{"items":[
				{"id":"1dfeR4HaWDbWqFHLkxsg1d","name":"Queen","genres":["rock","glam rock"],"popularity":84,"followers":{"total":28000000}}
			]}}`)
		default:
			fmt.Fprint(w, `{"artists":{"items":[]}}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		artist, err := c.SearchArtist(ctx, "Queen")
		require.NoError(t, err)
		assert.Equal(t, "1dfeR4HaWDbWqFHLkxsg1d", artist.ID)
		assert.Equal(t, "Queen", artist.Name)
		assert.Equal(t, []string{"rock", "glam rock"}, artist.Genres)
		assert.Equal(t, 84, artist.Popularity)
		assert.Equal(t, 28000000, artist.Followers)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.SearchArtist(ctx, "no such artist")
		assert.ErrorIs(t, err, catalog.ErrArtistNotFound)
	})
}

func TestClient_ListAlbums_PaginatesAndDedupes(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artists/art1/albums", r.URL.Path)

		if r.URL.Query().Get("page") == "2" {
			// Second page repeats a1 as a locale variant.
			fmt.Fprint(w, `{"items":[
				{"id":"a1","name":"First (JP)","release_date":"1991-01-01","total_tracks":10},
				{"id":"a3","name":"Third","release_date":"1995-03-03","total_tracks":12}
			],"next":null}`)
			return
		}
		fmt.Fprintf(w, `{"items":[
			{"id":"a1","name":"First","release_date":"1991-01-01","total_tracks":10},
			{"id":"a2","name":"Second","release_date":"1993-02-02","total_tracks":11}
		],"next":"%s/artists/art1/albums?page=2"}`, srv.URL)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	albums, err := c.ListAlbums(context.Background(), "art1")
	require.NoError(t, err)
	require.Len(t, albums, 3)

	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{albums[0].ID, albums[1].ID, albums[2].ID})
	assert.Equal(t, "First", albums[0].Name, "first occurrence wins on duplicate ids")
	for _, album := range albums {
		assert.Equal(t, "art1", album.ArtistID)
	}
}

func TestClient_ListTracks_PreservesUpstreamOrder(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/albums/a1/tracks", r.URL.Path)

		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"items":[
				{"id":"t3","name":"Three","duration_ms":180000,"track_number":3}
			],"next":null}`)
			return
		}
		fmt.Fprintf(w, `{"items":[
			{"id":"t1","name":"One","duration_ms":200000,"track_number":1},
			{"id":"t2","name":"Two","duration_ms":210000,"track_number":2}
		],"next":"%s/albums/a1/tracks?page=2"}`, srv.URL)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	tracks, err := c.ListTracks(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{tracks[0].ID, tracks[1].ID, tracks[2].ID})
	for _, track := range tracks {
		assert.Empty(t, track.AlbumID, "linkage belongs to the orchestrator")
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"items":[{"id":"t1","name":"One","duration_ms":1000,"track_number":1}],"next":null}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	tracks, err := c.ListTracks(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ExhaustedRetriesSurfaceUpstreamError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"status":503,"message":"service unavailable"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.ListTracks(context.Background(), "a1")
	require.Error(t, err)

	var upstreamErr *catalog.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.Status)
	assert.Contains(t, upstreamErr.Body, "service unavailable")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "3 retries after the first attempt")
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"status":400,"message":"invalid id"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.ListTracks(context.Background(), "bad id")
	var upstreamErr *catalog.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadRequest, upstreamErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_UnreachableUpstreamSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(srv.URL)
	c.maxRetries = 1

	_, err := c.ListAlbums(context.Background(), "art1")
	require.Error(t, err)

	var upstreamErr *catalog.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Zero(t, upstreamErr.Status, "no status when the upstream never answered")
	assert.Error(t, upstreamErr.Unwrap())
}

func TestClient_RefreshesTokenOn401(t *testing.T) {
	var exchanges int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer auth.Close()

	var apiCalls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"t1","name":"One","duration_ms":1000,"track_number":1}],"next":null}`)
	}))
	defer api.Close()

	c := newTestClient(api.URL)
	c.tokens.authURL = auth.URL
	c.tokens.token = "stale-token"

	tracks, err := c.ListTracks(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
	assert.Equal(t, int32(2), atomic.LoadInt32(&apiCalls))
}

func TestClient_PermanentlyRejectedAfterRefresh(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer auth.Close()

	var apiCalls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"bad token"}}`)
	}))
	defer api.Close()

	c := newTestClient(api.URL)
	c.tokens.authURL = auth.URL

	_, err := c.ListTracks(context.Background(), "a1")
	var upstreamErr *catalog.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnauthorized, upstreamErr.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&apiCalls), "one refresh retry, then permanent failure")
}
