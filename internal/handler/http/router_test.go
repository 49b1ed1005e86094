package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/auth"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/event"
	"github.com/marketa/catalog/internal/repository"
	"github.com/marketa/catalog/internal/service"
	apperrors "github.com/marketa/catalog/pkg/errors"
	"github.com/marketa/catalog/pkg/health"
	pkgkafka "github.com/marketa/catalog/pkg/kafka"
)

type mockProductRepo struct {
	mock.Mock
}

func (m *mockProductRepo) Create(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepo) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepo) Save(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockProductRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// flakyStore fails uploads for scripted filenames and succeeds otherwise.
type flakyStore struct {
	failFiles map[string]error
}

func (s *flakyStore) Upload(_ context.Context, input *assetstore.UploadInput) (*assetstore.UploadResult, error) {
	if err, ok := s.failFiles[input.Filename]; ok {
		return nil, err
	}
	return &assetstore.UploadResult{
		AssetID: "asset-" + input.Filename,
		URL:     "https://cdn.test/asset-" + input.Filename,
	}, nil
}

func (s *flakyStore) Delete(context.Context, string) error { return nil }

type testEnv struct {
	router  http.Handler
	repo    *mockProductRepo
	store   *flakyStore
	jwt     *auth.JWTManager
	product *domain.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	producer := event.NewProducer(
		pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), logger),
		logger,
	)

	repo := new(mockProductRepo)
	store := &flakyStore{failFiles: map[string]error{}}
	jwtManager := auth.NewJWTManager("test-secret", 15*time.Minute, time.Hour)

	products := service.NewProductService(repo, store, nil, producer, clk, logger)
	images := service.NewImageService(repo, store, nil, producer, clk, logger)
	ratings := service.NewRatingService(repo, nil, producer, clk, logger)

	router := NewRouter(RouterConfig{
		ServiceName: "catalog-api",
		Logger:      logger,
		JWTManager:  jwtManager,
		Health:      health.NewHandler(),
		Products:    NewProductHandler(products, logger),
		Images:      NewImageHandler(images, 32<<20, logger),
		Ratings:     NewRatingHandler(ratings, logger),
		Categories:  NewCategoryHandler(nil, logger),
		Auth:        NewAuthHandler(nil, logger),
	})

	product := &domain.Product{
		ID:         "prod-1",
		SKU:        "SKU-001",
		Name:       "Trail Runner",
		Slug:       "trail-runner",
		Status:     domain.ProductStatusActive,
		Price:      120,
		Discount:   25,
		FinalPrice: 90,
		Images:     []domain.Image{},
		Ratings:    []domain.Rating{},
		Version:    1,
	}

	return &testEnv{router: router, repo: repo, store: store, jwt: jwtManager, product: product}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body.Bytes(), &envelope))
	return envelope
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, "prod-1").Return(env.product, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/products/prod-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec.Body)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "prod-1", data["id"])
	assert.Equal(t, float64(90), data["final_price"])
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.NotFound("product", "missing"))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/products/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec.Body)
	errBody := envelope["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestCreateProduct_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	body := strings.NewReader(`{"sku":"SKU-002","name":"New","price":10}`)
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/products", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateProduct_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"sku":"SKU-002","name":"New","price":10}`))
	req.Header.Set("Authorization", "Bearer "+env.token(t, "user-1", domain.RoleCustomer))

	assert.Equal(t, http.StatusForbidden, env.do(req).Code)
}

func TestCreateProduct_AsAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"sku":"SKU-002","name":"New Product","price":200,"discount":10}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", domain.RoleAdmin))

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeEnvelope(t, rec.Body)["data"].(map[string]any)
	assert.Equal(t, float64(180), data["final_price"])
	assert.Equal(t, "new-product", data["slug"])
}

func TestCreateProduct_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"sku":"SKU-002","name":"New","price":-5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", domain.RoleAdmin))

	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeEnvelope(t, rec.Body)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

func TestSubmitRating_RaterFromToken(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, "prod-1").Return(env.product, nil)
	env.repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/prod-1/ratings",
		strings.NewReader(`{"score":5,"review":"works exactly as described"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "user-7", domain.RoleCustomer))

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec.Body)["data"].(map[string]any)
	ratings := data["ratings"].([]any)
	require.Len(t, ratings, 1)
	assert.Equal(t, "user-7", ratings[0].(map[string]any)["rater_id"])
	assert.Equal(t, float64(5), data["average_rating"])
}

func multipartUpload(t *testing.T, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range filenames {
		part, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake-image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAddImages_PartialFailureReturnsOutcomes(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, "prod-1").Return(env.product, nil)
	env.store.failFiles["b.jpg"] = errors.New("upstream returned 502")

	body, contentType := multipartUpload(t, "a.jpg", "b.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/prod-1/images", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", domain.RoleAdmin))

	rec := env.do(req)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	errBody := decodeEnvelope(t, rec.Body)["error"].(map[string]any)
	assert.Equal(t, "UPLOAD_FAILED", errBody["code"])

	details := errBody["details"].([]any)
	require.Len(t, details, 2)
	first := details[0].(map[string]any)
	second := details[1].(map[string]any)
	assert.Equal(t, true, first["succeeded"])
	assert.Equal(t, "asset-a.jpg", first["asset_id"])
	assert.Equal(t, false, second["succeeded"])

	env.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAddImages_Success(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, "prod-1").Return(env.product, nil)
	env.repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	body, contentType := multipartUpload(t, "a.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/prod-1/images", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", domain.RoleAdmin))

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeEnvelope(t, rec.Body)["data"].(map[string]any)
	images := data["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "asset-a.jpg", images[0].(map[string]any)["asset_id"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
