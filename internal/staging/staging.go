package staging

import (
	"bytes"
	"context"
	"encoding/json"

	"catalogstage/internal/catalog"
)

// ObjectStore is the write-only blob port the writer stages through.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Paths names the blobs written by one flush. A collection whose write
// never happened has an empty path.
type Paths struct {
	Artists string `json:"artists,omitempty"`
	Albums  string `json:"albums,omitempty"`
	Tracks  string `json:"tracks,omitempty"`
}

// Writer serializes run collections as newline-delimited JSON, one
// blob per collection under <collection>/<runID>.json. Writes are
// independent and non-atomic: a failure aborts the remaining
// collections but blobs already written stay written.
type Writer struct {
	store ObjectStore
}

func NewWriter(store ObjectStore) *Writer {
	return &Writer{store: store}
}

// Flush writes artists, albums and tracks in that order. On failure it
// returns a *catalog.StorageError naming the collection, along with
// the paths of collections that were already staged.
func (w *Writer) Flush(ctx context.Context, runID string, artists []catalog.Artist, albums []catalog.Album, tracks []catalog.Track) (Paths, error) {
	var paths Paths

	key, err := putCollection(ctx, w.store, "artists", runID, artists)
	if err != nil {
		return paths, err
	}
	paths.Artists = key

	key, err = putCollection(ctx, w.store, "albums", runID, albums)
	if err != nil {
		return paths, err
	}
	paths.Albums = key

	key, err = putCollection(ctx, w.store, "tracks", runID, tracks)
	if err != nil {
		return paths, err
	}
	paths.Tracks = key

	return paths, nil
}

func putCollection[T any](ctx context.Context, store ObjectStore, collection, runID string, records []T) (string, error) {
	key := collection + "/" + runID + ".json"

	data, err := encodeNDJSON(records)
	if err != nil {
		return "", &catalog.StorageError{Collection: collection, Key: key, Err: err}
	}
	if err := store.Put(ctx, key, data); err != nil {
		return "", &catalog.StorageError{Collection: collection, Key: key, Err: err}
	}
	return key, nil
}

// encodeNDJSON renders one compact JSON object per line. Warehouse
// bulk loaders reject pretty-printed or BOM-prefixed blobs. An empty
// collection yields a zero-length blob.
func encodeNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
