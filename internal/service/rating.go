package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketa/catalog/internal/cache"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/event"
	"github.com/marketa/catalog/internal/repository"
)

// RatingService implements rating submission and listing against the product
// aggregate.
type RatingService struct {
	repo     repository.ProductRepository
	cache    *cache.ProductCache
	producer *event.Producer
	clk      clock.Clock
	logger   *slog.Logger
}

// NewRatingService creates a new rating service. cache may be nil.
func NewRatingService(
	repo repository.ProductRepository,
	productCache *cache.ProductCache,
	producer *event.Producer,
	clk clock.Clock,
	logger *slog.Logger,
) *RatingService {
	return &RatingService{
		repo:     repo,
		cache:    productCache,
		producer: producer,
		clk:      clk,
		logger:   logger,
	}
}

// SubmitRatingInput holds the parameters for submitting a rating.
type SubmitRatingInput struct {
	ProductID string
	RaterID   string
	Score     int
	Review    string
}

// SubmitRating records a rating on the product. A rater's second submission
// replaces the first, timestamp included. The average is recomputed inside the
// aggregate mutation and the whole document is persisted once.
func (s *RatingService) SubmitRating(ctx context.Context, input *SubmitRatingInput) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product for rating: %w", err)
	}

	if err := product.Rate(input.RaterID, input.Score, input.Review, s.clk.Now()); err != nil {
		return nil, err
	}

	product.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("save rated product: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, product.ID); err != nil {
			s.logger.WarnContext(ctx, "product cache invalidation failed",
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	rating, _ := product.RatingBy(input.RaterID)
	if err := s.producer.PublishProductRated(ctx, product, rating); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.rated event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "rating submitted",
		slog.String("product_id", product.ID),
		slog.String("rater_id", input.RaterID),
		slog.Int("score", input.Score),
		slog.Float64("average_rating", product.AverageRating),
	)

	return product, nil
}

// ListRatings returns all ratings for a product.
func (s *RatingService) ListRatings(ctx context.Context, productID string) ([]domain.Rating, error) {
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for ratings: %w", err)
	}

	if product.Ratings == nil {
		return []domain.Rating{}, nil
	}
	return product.Ratings, nil
}
