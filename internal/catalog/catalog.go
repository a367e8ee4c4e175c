package catalog

// Artist is the resolved artist for a run. One per run.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	Followers  int      `json:"followers"`
}

// Album is one release in the artist's catalog. ArtistID always equals
// the resolved artist's ID.
type Album struct {
	ID          string `json:"id"`
	ArtistID    string `json:"artist_id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	TotalTracks int    `json:"total_tracks"`
}

// Track is one track of one album. AlbumID is injected by the
// extraction pipeline, never trusted from the upstream payload. Track
// IDs are only unique within an album.
type Track struct {
	ID          string `json:"id"`
	AlbumID     string `json:"album_id"`
	Name        string `json:"name"`
	DurationMS  int    `json:"duration_ms"`
	TrackNumber int    `json:"track_number"`
}
