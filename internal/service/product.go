package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/cache"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/event"
	"github.com/marketa/catalog/internal/repository"
	apperrors "github.com/marketa/catalog/pkg/errors"
	"github.com/marketa/catalog/pkg/slug"
)

// ProductService implements the business logic for product CRUD and the
// cascade delete. Rating and image mutations live in RatingService and
// ImageService; all three share the same repository and cache.
type ProductService struct {
	repo     repository.ProductRepository
	store    assetstore.AssetStore
	cache    *cache.ProductCache
	producer *event.Producer
	clk      clock.Clock
	logger   *slog.Logger
}

// NewProductService creates a new product service. cache may be nil when Redis
// is disabled.
func NewProductService(
	repo repository.ProductRepository,
	store assetstore.AssetStore,
	productCache *cache.ProductCache,
	producer *event.Producer,
	clk clock.Clock,
	logger *slog.Logger,
) *ProductService {
	return &ProductService{
		repo:     repo,
		store:    store,
		cache:    productCache,
		producer: producer,
		clk:      clk,
		logger:   logger,
	}
}

// CreateProductInput holds the parameters for creating a product.
type CreateProductInput struct {
	SKU         string
	Name        string
	Description string
	CategoryID  *string
	Price       float64
	Discount    float64
}

// UpdateProductInput holds the parameters for updating a product. SKU is
// immutable after creation and deliberately absent.
type UpdateProductInput struct {
	Name        *string
	Description *string
	CategoryID  *string
	Status      *string
	Price       *float64
	Discount    *float64
}

// CreateProduct creates a new product with the given input.
func (s *ProductService) CreateProduct(ctx context.Context, input *CreateProductInput) (*domain.Product, error) {
	if input.SKU == "" {
		return nil, apperrors.InvalidInput("sku is required")
	}
	if input.Name == "" {
		return nil, apperrors.InvalidInput("product name is required")
	}

	now := s.clk.Now()
	product := &domain.Product{
		ID:          uuid.New().String(),
		SKU:         input.SKU,
		Name:        input.Name,
		Slug:        slug.Generate(input.Name),
		Description: input.Description,
		CategoryID:  input.CategoryID,
		Status:      domain.ProductStatusActive,
		Images:      []domain.Image{},
		Ratings:     []domain.Rating{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := product.SetPricing(input.Price, input.Discount); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := s.producer.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("sku", product.SKU),
	)

	return product, nil
}

// GetProduct retrieves a product by its ID, read-through the cache.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "product cache read failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, product); err != nil {
			s.logger.WarnContext(ctx, "product cache write failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return product, nil
}

// GetProductBySKU retrieves a product by its SKU.
func (s *ProductService) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return product, nil
}

// ListProducts returns a filtered, paginated list of products.
func (s *ProductService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	return products, total, nil
}

// UpdateProduct applies partial updates to an existing product. Any change to
// price or discount recomputes the final price in the same mutation.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, input *UpdateProductInput) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product for update: %w", err)
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, apperrors.InvalidInput("product name must not be empty")
		}
		product.Name = *input.Name
		product.Slug = slug.Generate(*input.Name)
	}

	if input.Description != nil {
		product.Description = *input.Description
	}

	if input.CategoryID != nil {
		product.CategoryID = input.CategoryID
	}

	if input.Status != nil {
		if !domain.IsValidStatus(*input.Status) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", *input.Status))
		}
		product.Status = *input.Status
	}

	if input.Price != nil || input.Discount != nil {
		price := product.Price
		discount := product.Discount
		if input.Price != nil {
			price = *input.Price
		}
		if input.Discount != nil {
			discount = *input.Discount
		}
		if err := product.SetPricing(price, discount); err != nil {
			return nil, err
		}
	}

	if err := s.saveAndInvalidate(ctx, product); err != nil {
		return nil, err
	}

	if err := s.producer.PublishProductUpdated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.updated event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product updated",
		slog.String("product_id", product.ID),
	)

	return product, nil
}

// DeleteProduct removes a product and releases its remote assets. Asset
// deletions run concurrently and tolerate "not found"; hard failures are
// logged as orphaned assets and never block removal of the record.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product for delete: %w", err)
	}

	if len(product.Images) > 0 {
		failures := s.releaseAssets(ctx, product.Images)
		for assetID, ferr := range failures {
			s.logger.ErrorContext(ctx, "orphaned asset after cascade delete",
				slog.String("product_id", id),
				slog.String("asset_id", assetID),
				slog.String("error", ferr.Error()),
			)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "product cache invalidation failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishProductDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("product_id", id),
		slog.Int("images_released", len(product.Images)),
	)

	return nil
}

// releaseAssets deletes every image's remote asset concurrently and returns
// the hard failures keyed by asset id. "Not found" counts as released.
func (s *ProductService) releaseAssets(ctx context.Context, images []domain.Image) map[string]error {
	var (
		g        errgroup.Group
		failures = make([]error, len(images))
	)

	for i, img := range images {
		g.Go(func() error {
			if err := s.store.Delete(ctx, img.AssetID); err != nil && !errors.Is(err, assetstore.ErrAssetNotFound) {
				failures[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]error)
	for i, err := range failures {
		if err != nil {
			result[images[i].AssetID] = err
		}
	}
	return result
}

// saveAndInvalidate persists the aggregate and drops the cache entry so the
// next read sees the new version.
func (s *ProductService) saveAndInvalidate(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = s.clk.Now()

	if err := s.repo.Save(ctx, product); err != nil {
		return fmt.Errorf("save product: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, product.ID); err != nil {
			s.logger.WarnContext(ctx, "product cache invalidation failed",
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
