package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"catalogstage/internal/catalog"
	"catalogstage/internal/extract"
	"catalogstage/internal/httpx"
	"catalogstage/internal/staging"

	"github.com/google/uuid"
)

// Extractor runs one catalog extraction.
type Extractor interface {
	Run(ctx context.Context, artistName string) (*extract.Result, error)
}

// Stager flushes run collections to the object store.
type Stager interface {
	Flush(ctx context.Context, runID string, artists []catalog.Artist, albums []catalog.Album, tracks []catalog.Track) (staging.Paths, error)
}

// ArtistHandler triggers an extraction run and reports its summary.
type ArtistHandler struct {
	extractor Extractor
	stager    Stager
}

func NewArtistHandler(extractor Extractor, stager Stager) *ArtistHandler {
	return &ArtistHandler{extractor: extractor, stager: stager}
}

// StoreSummary is the response body for a completed run. Produced is
// "full" when every album and every collection made it to staging,
// "partial" otherwise.
type StoreSummary struct {
	Artist         string        `json:"artist"`
	AlbumsWritten  int           `json:"albumsWritten"`
	TracksWritten  int           `json:"tracksWritten"`
	FailedAlbumIDs []string      `json:"failedAlbumIds"`
	StagingPaths   staging.Paths `json:"stagingPaths"`
	Produced       string        `json:"produced"`
	StagingError   string        `json:"stagingError,omitempty"`
}

// Store handles GET /artist/{name}/store
func (h *ArtistHandler) Store(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "BAD_REQUEST", "artist name is required")
		return
	}

	result, err := h.extractor.Run(r.Context(), name)
	if err != nil {
		h.writeRunError(r, w, err)
		return
	}

	// Unique per invocation so concurrent runs never overwrite each
	// other's blobs.
	runID := uuid.New().String()

	paths, flushErr := h.stager.Flush(r.Context(), runID,
		[]catalog.Artist{result.Artist}, result.Albums, result.Tracks)
	if flushErr != nil && paths == (staging.Paths{}) {
		// Nothing staged at all.
		log.Printf("store: staging failed request_id=%s err=%v", httpx.RequestIDFrom(r), flushErr)
		httpx.JSONErrorWithRequest(r, w, http.StatusBadGateway, "STORAGE_ERROR", flushErr.Error())
		return
	}

	summary := StoreSummary{
		Artist:         result.Artist.Name,
		AlbumsWritten:  len(result.Albums),
		TracksWritten:  len(result.Tracks),
		FailedAlbumIDs: result.FailedAlbumIDs,
		StagingPaths:   paths,
		Produced:       "full",
	}
	if summary.FailedAlbumIDs == nil {
		summary.FailedAlbumIDs = []string{}
	}
	if len(result.FailedAlbumIDs) > 0 || flushErr != nil {
		summary.Produced = "partial"
	}
	if flushErr != nil {
		log.Printf("store: partial staging request_id=%s err=%v", httpx.RequestIDFrom(r), flushErr)
		summary.StagingError = flushErr.Error()
	}

	httpx.JSONSuccessWithRequest(r, w, summary)
}

func (h *ArtistHandler) writeRunError(r *http.Request, w http.ResponseWriter, err error) {
	var authErr *catalog.AuthError
	var upstreamErr *catalog.UpstreamError
	switch {
	case errors.Is(err, catalog.ErrArtistNotFound):
		httpx.JSONErrorWithRequest(r, w, http.StatusNotFound, "ARTIST_NOT_FOUND", "artist not found")
	case errors.As(err, &authErr):
		httpx.JSONErrorWithRequest(r, w, http.StatusBadGateway, "UPSTREAM_AUTH_FAILED", authErr.Error())
	case errors.As(err, &upstreamErr):
		httpx.JSONErrorWithRequest(r, w, http.StatusBadGateway, "UPSTREAM_ERROR", upstreamErr.Error())
	default:
		log.Printf("store: run failed request_id=%s err=%v", httpx.RequestIDFrom(r), err)
		httpx.JSONErrorWithRequest(r, w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
