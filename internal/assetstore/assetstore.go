package assetstore

import (
	"context"
	"errors"
	"io"
)

// ErrAssetNotFound is returned by Delete when the store does not know the
// asset id. Callers treat it as success so a half-deleted image entry can
// always be cleared.
var ErrAssetNotFound = errors.New("asset not found")

// UploadInput holds the parameters for uploading an asset.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadResult holds the handle and public URL of a stored asset.
type UploadResult struct {
	AssetID string
	URL     string
}

// AssetStore is the capability contract for the external image host.
type AssetStore interface {
	// Upload stores an asset and returns its handle and retrieval URL.
	Upload(ctx context.Context, input *UploadInput) (*UploadResult, error)

	// Delete removes an asset by its handle. Returns ErrAssetNotFound when
	// the store reports the id as already absent.
	Delete(ctx context.Context, assetID string) error
}
