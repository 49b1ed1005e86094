package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/repository"
	apperrors "github.com/marketa/catalog/pkg/errors"
)

func newProductService(repo *mockProductRepository, store *scriptedStore) *ProductService {
	return NewProductService(repo, store, nil, newTestProducer(), newTestClock(), newTestLogger())
}

func TestCreateProduct_ComputesFinalPrice(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	svc := newProductService(repo, newScriptedStore())
	product, err := svc.CreateProduct(context.Background(), &CreateProductInput{
		SKU:      "SKU-001",
		Name:     "Trail Runner",
		Price:    100,
		Discount: 25,
	})
	require.NoError(t, err)

	assert.Equal(t, float64(75), product.FinalPrice)
	assert.Equal(t, domain.ProductStatusActive, product.Status)
	assert.Equal(t, int64(1), product.Version)
	assert.Equal(t, "trail-runner", product.Slug)
	assert.NotEmpty(t, product.ID)
	repo.AssertExpectations(t)
}

func TestCreateProduct_Validation(t *testing.T) {
	svc := newProductService(new(mockProductRepository), newScriptedStore())

	_, err := svc.CreateProduct(context.Background(), &CreateProductInput{Name: "No SKU"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateProduct(context.Background(), &CreateProductInput{SKU: "S", Name: "X", Price: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateProduct(context.Background(), &CreateProductInput{SKU: "S", Name: "X", Discount: 120})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound)

	svc := newProductService(repo, newScriptedStore())
	_, err := svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListProducts_ClampsPagination(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.ProductFilter) bool {
		return f.Page == 1 && f.PerPage == 100
	})).Return([]domain.Product{}, 0, nil)

	svc := newProductService(repo, newScriptedStore())
	_, _, err := svc.ListProducts(context.Background(), repository.ProductFilter{Page: -1, PerPage: 500})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateProduct_PriceChangeRecomputesFinalPrice(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(activeProduct(), nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	svc := newProductService(repo, newScriptedStore())
	newPrice := 200.0
	product, err := svc.UpdateProduct(context.Background(), "prod-1", &UpdateProductInput{Price: &newPrice})
	require.NoError(t, err)

	// Discount of 25% kept, applied to the new price.
	assert.Equal(t, float64(150), product.FinalPrice)
	repo.AssertExpectations(t)
}

func TestUpdateProduct_InvalidStatus(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(activeProduct(), nil)

	svc := newProductService(repo, newScriptedStore())
	bad := "discontinued"
	_, err := svc.UpdateProduct(context.Background(), "prod-1", &UpdateProductInput{Status: &bad})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestUpdateProduct_ConflictSurfaces(t *testing.T) {
	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(activeProduct(), nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(apperrors.Conflict("product", "prod-1"))

	svc := newProductService(repo, newScriptedStore())
	desc := "updated description"
	_, err := svc.UpdateProduct(context.Background(), "prod-1", &UpdateProductInput{Description: &desc})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDeleteProduct_CascadeReleasesAssets(t *testing.T) {
	product := activeProduct()
	product.Images = []domain.Image{
		{ID: "img-1", AssetID: "asset-1"},
		{ID: "img-2", AssetID: "asset-2"},
		{ID: "img-3", AssetID: "asset-3"},
	}

	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	repo.On("Delete", mock.Anything, "prod-1").Return(nil)

	store := newScriptedStore()
	svc := newProductService(repo, store)

	require.NoError(t, svc.DeleteProduct(context.Background(), "prod-1"))
	assert.ElementsMatch(t, []string{"asset-1", "asset-2", "asset-3"}, store.deleted())
	repo.AssertExpectations(t)
}

func TestDeleteProduct_HardDeleteFailureDoesNotBlockRemoval(t *testing.T) {
	product := activeProduct()
	product.Images = []domain.Image{
		{ID: "img-1", AssetID: "asset-1"},
		{ID: "img-2", AssetID: "asset-2"},
		{ID: "img-3", AssetID: "asset-3"},
	}

	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	repo.On("Delete", mock.Anything, "prod-1").Return(nil)

	store := newScriptedStore()
	store.deleteErr["asset-2"] = errors.New("storage backend unavailable")

	svc := newProductService(repo, store)
	err := svc.DeleteProduct(context.Background(), "prod-1")

	// Orphaned asset-2 is logged, never surfaced.
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"asset-1", "asset-3"}, store.deleted())
	repo.AssertCalled(t, "Delete", mock.Anything, "prod-1")
}

func TestDeleteProduct_AssetNotFoundTolerated(t *testing.T) {
	product := activeProduct()
	product.Images = []domain.Image{{ID: "img-1", AssetID: "asset-1"}}

	repo := new(mockProductRepository)
	repo.On("GetByID", mock.Anything, "prod-1").Return(product, nil)
	repo.On("Delete", mock.Anything, "prod-1").Return(nil)

	store := newScriptedStore()
	store.deleteErr["asset-1"] = assetstore.ErrAssetNotFound

	svc := newProductService(repo, store)
	assert.NoError(t, svc.DeleteProduct(context.Background(), "prod-1"))
	repo.AssertExpectations(t)
}
