package repository

import (
	"context"

	"github.com/marketa/catalog/internal/domain"
)

// ProductFilter defines filter criteria for listing products.
type ProductFilter struct {
	CategoryID *string
	Status     *string
	Search     *string
	MinPrice   *float64
	MaxPrice   *float64
	SortBy     string // created_at, final_price, average_rating
	SortDesc   bool
	Page       int
	PerPage    int
}

// ProductRepository defines the interface for product persistence operations.
// The product row carries the whole aggregate: scalar columns plus the images
// and ratings collections.
type ProductRepository interface {
	// Create inserts a new product into the store.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product with its images and ratings.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetBySKU retrieves a product by its SKU.
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// List returns products matching the given filter along with the total count.
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)

	// Save persists the whole aggregate conditional on product.Version. On
	// success the version is incremented in place. A stale version yields
	// errors.ErrConflict; a missing row yields errors.ErrNotFound.
	Save(ctx context.Context, product *domain.Product) error

	// Delete removes a product from the store by its identifier.
	Delete(ctx context.Context, id string) error
}

// CategoryRepository defines the interface for category persistence operations.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListAll(ctx context.Context) ([]domain.Category, error)
}

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// StoreRefreshToken persists a hashed refresh token.
	StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error

	// GetRefreshToken retrieves a refresh token by its hash.
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// RevokeRefreshToken marks a refresh token as revoked.
	RevokeRefreshToken(ctx context.Context, id string) error
}
