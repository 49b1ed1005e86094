package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marketa/catalog/internal/assetstore"
)

// assetEntry stores metadata about an uploaded asset in memory.
type assetEntry struct {
	Filename    string
	ContentType string
	Size        int64
	URL         string
}

// Store implements assetstore.AssetStore using an in-memory map. It stores
// metadata only (no actual file bytes) for development and tests.
type Store struct {
	mu      sync.RWMutex
	assets  map[string]*assetEntry
	baseURL string
}

// New creates a new in-memory asset store.
func New(baseURL string) *Store {
	return &Store{
		assets:  make(map[string]*assetEntry),
		baseURL: baseURL,
	}
}

// Upload stores asset metadata in memory and returns a generated handle and URL.
func (s *Store) Upload(_ context.Context, input *assetstore.UploadInput) (*assetstore.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assetID := uuid.New().String()
	url := fmt.Sprintf("%s/assets/%s", s.baseURL, assetID)

	s.assets[assetID] = &assetEntry{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Size:        input.Size,
		URL:         url,
	}

	return &assetstore.UploadResult{AssetID: assetID, URL: url}, nil
}

// Delete removes asset metadata from memory.
func (s *Store) Delete(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[assetID]; !exists {
		return assetstore.ErrAssetNotFound
	}

	delete(s.assets, assetID)
	return nil
}

// Len reports the number of stored assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
