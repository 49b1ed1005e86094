package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/cache"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/event"
	"github.com/marketa/catalog/internal/repository"
	apperrors "github.com/marketa/catalog/pkg/errors"
)

// ImageUpload is one raw image buffer to attach to a product.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadOutcome reports the result of one upload attempt. Succeeded entries
// carry the asset handle so callers can clean up after a partial failure.
type UploadOutcome struct {
	Index     int    `json:"index"`
	Filename  string `json:"filename"`
	Succeeded bool   `json:"succeeded"`
	AssetID   string `json:"asset_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UploadError is returned when one or more uploads in a batch failed. Nothing
// was persisted; uploads that succeeded are not rolled back, their outcomes
// name the remote assets left behind.
type UploadError struct {
	Outcomes []UploadOutcome
}

func (e *UploadError) Error() string {
	failed := 0
	for _, o := range e.Outcomes {
		if !o.Succeeded {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d image uploads failed", failed, len(e.Outcomes))
}

func (e *UploadError) Unwrap() error {
	return apperrors.ErrUploadFailed
}

// Details exposes the per-input outcomes to the HTTP error envelope.
func (e *UploadError) Details() any {
	return e.Outcomes
}

// DeleteFailure names an image whose remote deletion failed during
// ReplaceImages; the entry is left on the product so the caller can retry.
type DeleteFailure struct {
	ImageID string `json:"image_id"`
	Error   string `json:"error"`
}

// ReplaceImagesResult reports the persisted product together with the delete
// failures that were tolerated along the way.
type ReplaceImagesResult struct {
	Product       *domain.Product `json:"product"`
	FailedDeletes []DeleteFailure `json:"failed_deletes,omitempty"`
}

// ImageService implements the image mutation protocol of the product
// aggregate: concurrent uploads with all-or-nothing persistence, idempotent
// single deletes, and the two-phase replace.
type ImageService struct {
	repo     repository.ProductRepository
	store    assetstore.AssetStore
	cache    *cache.ProductCache
	producer *event.Producer
	clk      clock.Clock
	logger   *slog.Logger
}

// NewImageService creates a new image service. cache may be nil.
func NewImageService(
	repo repository.ProductRepository,
	store assetstore.AssetStore,
	productCache *cache.ProductCache,
	producer *event.Producer,
	clk clock.Clock,
	logger *slog.Logger,
) *ImageService {
	return &ImageService{
		repo:     repo,
		store:    store,
		cache:    productCache,
		producer: producer,
		clk:      clk,
		logger:   logger,
	}
}

// AddImages uploads every buffer to the asset store and appends the results to
// the product's image sequence in input order. Uploads run concurrently and
// every outcome is collected before deciding: if any upload failed, nothing is
// persisted and an UploadError reports which inputs succeeded. Remote assets
// from succeeded uploads are not rolled back.
func (s *ImageService) AddImages(ctx context.Context, productID string, files []ImageUpload) (*domain.Product, error) {
	if len(files) == 0 {
		return nil, apperrors.InvalidInput("at least one image file is required")
	}

	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for image upload: %w", err)
	}

	outcomes := s.uploadAll(ctx, files)

	added, allOK := s.applyUploads(product, outcomes)
	if !allOK {
		s.logger.WarnContext(ctx, "image batch upload partially failed",
			slog.String("product_id", productID),
			slog.Int("total", len(files)),
			slog.Int("succeeded", succeededCount(outcomes)),
		)
		return nil, &UploadError{Outcomes: outcomes}
	}

	product.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("save product after image upload: %w", err)
	}
	s.invalidate(ctx, product.ID)

	if err := s.producer.PublishImagesChanged(ctx, product, added, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.images_changed event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "images added",
		slog.String("product_id", product.ID),
		slog.Int("count", len(added)),
	)

	return product, nil
}

// DeleteImage removes one image from the product. Exactly one delete call goes
// to the asset store; "not found" there counts as success so the local entry
// can always be cleared. Any other store failure leaves the entry in place and
// surfaces an asset store error, keeping the operation retryable.
func (s *ImageService) DeleteImage(ctx context.Context, productID, imageID string) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for image delete: %w", err)
	}

	img, ok := product.ImageByID(imageID)
	if !ok {
		return nil, apperrors.NotFound("image", imageID)
	}

	if err := s.store.Delete(ctx, img.AssetID); err != nil && !errors.Is(err, assetstore.ErrAssetNotFound) {
		return nil, apperrors.AssetStore(err)
	}

	if err := product.RemoveImage(imageID); err != nil {
		return nil, err
	}

	product.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("save product after image delete: %w", err)
	}
	s.invalidate(ctx, product.ID)

	if err := s.producer.PublishImagesChanged(ctx, product, nil, []string{imageID}); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.images_changed event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	return product, nil
}

// ReplaceImages deletes the listed images, then adds the new files. The delete
// phase collects per-id failures instead of aborting: a failed id stays on the
// product, the rest are removed and persisted before the add phase starts.
// Deleting first keeps the worst case at "old images not removed" instead of
// ending up with both old and new attached. Duplicate delete ids are rejected
// outright.
func (s *ImageService) ReplaceImages(ctx context.Context, productID string, deleteIDs []string, files []ImageUpload) (*ReplaceImagesResult, error) {
	seen := make(map[string]struct{}, len(deleteIDs))
	for _, id := range deleteIDs {
		if _, dup := seen[id]; dup {
			return nil, apperrors.InvalidInput(fmt.Sprintf("duplicate delete id %q", id))
		}
		seen[id] = struct{}{}
	}

	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for image replace: %w", err)
	}

	var failedDeletes []DeleteFailure
	if len(deleteIDs) > 0 {
		failedDeletes = s.deletePhase(ctx, product, deleteIDs)

		product.UpdatedAt = s.clk.Now()
		if err := s.repo.Save(ctx, product); err != nil {
			return nil, fmt.Errorf("save product after image deletions: %w", err)
		}
		s.invalidate(ctx, product.ID)
	}

	var added []string
	if len(files) > 0 {
		outcomes := s.uploadAll(ctx, files)

		var allOK bool
		added, allOK = s.applyUploads(product, outcomes)
		if !allOK {
			// The delete phase is already persisted at this point; only the
			// upload outcomes ride on the error. Delete-phase failures are
			// observable by re-reading the product.
			return nil, &UploadError{Outcomes: outcomes}
		}

		product.UpdatedAt = s.clk.Now()
		if err := s.repo.Save(ctx, product); err != nil {
			return nil, fmt.Errorf("save product after image additions: %w", err)
		}
		s.invalidate(ctx, product.ID)
	}

	removed := make([]string, 0, len(deleteIDs))
	failed := make(map[string]struct{}, len(failedDeletes))
	for _, f := range failedDeletes {
		failed[f.ImageID] = struct{}{}
	}
	for _, id := range deleteIDs {
		if _, ok := failed[id]; !ok {
			removed = append(removed, id)
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		if err := s.producer.PublishImagesChanged(ctx, product, added, removed); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish product.images_changed event",
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "images replaced",
		slog.String("product_id", product.ID),
		slog.Int("removed", len(removed)),
		slog.Int("added", len(added)),
		slog.Int("failed_deletes", len(failedDeletes)),
	)

	return &ReplaceImagesResult{Product: product, FailedDeletes: failedDeletes}, nil
}

// uploadAll issues every upload concurrently and waits for all of them. There
// is deliberately no fail-fast: the per-input outcomes must be complete.
func (s *ImageService) uploadAll(ctx context.Context, files []ImageUpload) []UploadOutcome {
	var (
		g        errgroup.Group
		outcomes = make([]UploadOutcome, len(files))
	)

	for i, f := range files {
		g.Go(func() error {
			outcome := UploadOutcome{Index: i, Filename: f.Filename}

			result, err := s.store.Upload(ctx, &assetstore.UploadInput{
				Filename:    f.Filename,
				ContentType: f.ContentType,
				Size:        int64(len(f.Data)),
				Data:        bytes.NewReader(f.Data),
			})
			if err != nil {
				outcome.Error = err.Error()
			} else {
				outcome.Succeeded = true
				outcome.AssetID = result.AssetID
				outcome.URL = result.URL
			}

			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// applyUploads appends the uploaded images to the product in input order when
// every outcome succeeded. It returns the new image ids and whether the batch
// was fully successful; on a partial failure the product is left untouched.
func (s *ImageService) applyUploads(product *domain.Product, outcomes []UploadOutcome) ([]string, bool) {
	for _, o := range outcomes {
		if !o.Succeeded {
			return nil, false
		}
	}

	now := s.clk.Now()
	images := make([]domain.Image, len(outcomes))
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		images[i] = domain.NewImage(o.URL, o.AssetID, now)
		ids[i] = images[i].ID
	}
	product.AppendImages(images)

	return ids, true
}

func succeededCount(outcomes []UploadOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Succeeded {
			n++
		}
	}
	return n
}

func (s *ImageService) invalidate(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.WarnContext(ctx, "product cache invalidation failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}

// deletePhase applies deleteImage semantics per id, collecting failures
// instead of aborting. Successful deletions (including store "not found") are
// removed from the product; failed ones stay.
func (s *ImageService) deletePhase(ctx context.Context, product *domain.Product, deleteIDs []string) []DeleteFailure {
	type deleteOutcome struct {
		imageID string
		err     error
	}

	var (
		g        errgroup.Group
		outcomes = make([]deleteOutcome, len(deleteIDs))
	)

	for i, id := range deleteIDs {
		img, ok := product.ImageByID(id)
		if !ok {
			outcomes[i] = deleteOutcome{imageID: id, err: apperrors.NotFound("image", id)}
			continue
		}

		g.Go(func() error {
			err := s.store.Delete(ctx, img.AssetID)
			if err != nil && !errors.Is(err, assetstore.ErrAssetNotFound) {
				outcomes[i] = deleteOutcome{imageID: id, err: err}
			} else {
				outcomes[i] = deleteOutcome{imageID: id}
			}
			return nil
		})
	}
	_ = g.Wait()

	var failures []DeleteFailure
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, DeleteFailure{ImageID: o.imageID, Error: o.err.Error()})
			continue
		}
		if err := product.RemoveImage(o.imageID); err != nil {
			failures = append(failures, DeleteFailure{ImageID: o.imageID, Error: err.Error()})
		}
	}

	return failures
}
