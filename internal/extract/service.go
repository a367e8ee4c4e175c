package extract

import (
	"context"
	"fmt"
	"log"

	"catalogstage/internal/catalog"

	"golang.org/x/sync/errgroup"
)

// workerLimit bounds in-flight per-album track fetches. The upstream
// enforces a per-second rate limit; unbounded fan-out turns into a
// cascade of 429s.
const workerLimit = 20

// CatalogClient is the upstream access the orchestrator needs.
type CatalogClient interface {
	SearchArtist(ctx context.Context, name string) (catalog.Artist, error)
	ListAlbums(ctx context.Context, artistID string) ([]catalog.Album, error)
	ListTracks(ctx context.Context, albumID string) ([]catalog.Track, error)
}

// Result holds the three collections produced by one run, plus the ids
// of albums whose track fetch failed after retries.
type Result struct {
	Artist         catalog.Artist
	Albums         []catalog.Album
	Tracks         []catalog.Track
	FailedAlbumIDs []string
}

// Service walks an artist's catalog: resolve the artist, list albums,
// then fetch tracks for every album with bounded concurrency.
type Service struct {
	client  CatalogClient
	workers int
}

func NewService(client CatalogClient) *Service {
	return &Service{client: client, workers: workerLimit}
}

// Run executes one extraction. Artist resolution and album listing
// failures abort the run; a single album's track fetch failure only
// excludes that album's tracks and is reported in FailedAlbumIDs.
// Tracks are concatenated in album order, upstream order within each
// album, with AlbumID set on every record. No overall deadline is
// enforced beyond each network call's own timeout.
func (s *Service) Run(ctx context.Context, artistName string) (*Result, error) {
	artist, err := s.client.SearchArtist(ctx, artistName)
	if err != nil {
		return nil, err
	}

	albums, err := s.client.ListAlbums(ctx, artist.ID)
	if err != nil {
		return nil, fmt.Errorf("list albums for artist %s: %w", artist.ID, err)
	}
	log.Printf("extract: albums listed artist_id=%s albums=%d", artist.ID, len(albums))

	// Indexed slots keep album order without any locking in workers.
	perAlbum := make([][]catalog.Track, len(albums))
	errs := make([]error, len(albums))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, album := range albums {
		g.Go(func() error {
			tracks, err := s.client.ListTracks(gctx, album.ID)
			if err != nil {
				// A failed album must not cancel its siblings.
				errs[i] = err
				return nil
			}
			for j := range tracks {
				tracks[j].AlbumID = album.ID
			}
			perAlbum[i] = tracks
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Artist: artist, Albums: albums}
	for i, album := range albums {
		if errs[i] != nil {
			log.Printf("extract: track fetch failed album_id=%s err=%v", album.ID, errs[i])
			result.FailedAlbumIDs = append(result.FailedAlbumIDs, album.ID)
			continue
		}
		result.Tracks = append(result.Tracks, perAlbum[i]...)
	}
	log.Printf("extract: run complete artist_id=%s albums=%d tracks=%d failed_albums=%d",
		artist.ID, len(result.Albums), len(result.Tracks), len(result.FailedAlbumIDs))
	return result, nil
}
