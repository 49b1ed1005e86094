package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/repository"
	"github.com/marketa/catalog/pkg/database"
	apperrors "github.com/marketa/catalog/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return mock
}

func strPtr(s string) *string { return &s }

// anyArgs returns n pgxmock.AnyArg() matchers. pgxmock requires WithArgs to
// match calls that carry arguments; these placeholders keep the expectation
// argument-agnostic.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var productCols = []string{
	"id", "sku", "name", "slug", "description", "category_id", "status",
	"price", "discount", "final_price", "images", "ratings", "average_rating",
	"version", "created_at", "updated_at",
}

var productColsWithCount = append(append([]string{}, productCols...), "total_count")

func sampleProduct() domain.Product {
	return domain.Product{
		ID:          "prod-1",
		SKU:         "SKU-001",
		Name:        "Trail Runner",
		Slug:        "trail-runner",
		Description: "Lightweight trail shoe",
		CategoryID:  strPtr("cat-1"),
		Status:      domain.ProductStatusActive,
		Price:       120,
		Discount:    25,
		FinalPrice:  90,
		Images: []domain.Image{
			{ID: "img-1", URL: "https://cdn.example.com/a.jpg", AssetID: "asset-1", AddedAt: now},
		},
		Ratings: []domain.Rating{
			{RaterID: "user-1", Score: 4, RatedAt: now},
		},
		AverageRating: 4,
		Version:       2,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func productRow(p domain.Product) []any {
	imagesJSON, _ := json.Marshal(p.Images)
	ratingsJSON, _ := json.Marshal(p.Ratings)
	return []any{
		p.ID, p.SKU, p.Name, p.Slug, p.Description, p.CategoryID, p.Status,
		p.Price, p.Discount, p.FinalPrice, imagesJSON, ratingsJSON,
		p.AverageRating, p.Version, p.CreatedAt, p.UpdatedAt,
	}
}

func TestProductRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	imagesJSON, _ := json.Marshal(p.Images)
	ratingsJSON, _ := json.Marshal(p.Ratings)

	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			p.ID, p.SKU, p.Name, p.Slug, p.Description, p.CategoryID, p.Status,
			p.Price, p.Discount, p.FinalPrice, imagesJSON, ratingsJSON,
			p.AverageRating, p.Version, p.CreatedAt, p.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), &p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Create_DuplicateSKU(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("INSERT INTO products").
		WithArgs(anyArgs(16)...).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(productRow(p)...))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, p.SKU, result.SKU)
	assert.Equal(t, p.FinalPrice, result.FinalPrice)
	assert.Equal(t, p.Version, result.Version)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "asset-1", result.Images[0].AssetID)
	require.Len(t, result.Ratings, 1)
	assert.Equal(t, 4, result.Ratings[0].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "missing-id")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_WithFilters(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	row := append(productRow(p), 1)

	status := domain.ProductStatusActive
	minPrice := 50.0
	filter := repository.ProductFilter{
		Status:   &status,
		MinPrice: &minPrice,
		Page:     1,
		PerPage:  20,
	}

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs(status, minPrice, 20, 0).
		WillReturnRows(pgxmock.NewRows(productColsWithCount).AddRow(row...))

	products, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_Empty(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(productColsWithCount))

	products, total, err := repo.List(context.Background(), repository.ProductFilter{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Save_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("UPDATE products").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Save(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Save_UsesCallerTimestamp(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	p.UpdatedAt = now.Add(42 * time.Minute)

	mock.ExpectExec("UPDATE products").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			p.UpdatedAt, p.ID, p.Version,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Save(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, now.Add(42*time.Minute), p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Save_VersionConflict(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("UPDATE products").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Save(context.Background(), &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, int64(2), p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Save_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("UPDATE products").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Save(context.Background(), &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Delete(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectExec("DELETE FROM products").
		WithArgs("prod-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, repo.Delete(context.Background(), "prod-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Delete_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectExec("DELETE FROM products").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
