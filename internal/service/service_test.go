package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/event"
	"github.com/marketa/catalog/internal/repository"
	pkgkafka "github.com/marketa/catalog/pkg/kafka"
)

// --- Mock repository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Save(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Scripted asset store ---

// scriptedStore is an AssetStore whose failures are scripted per filename or
// asset id. Successful uploads derive the asset id from the filename so tests
// can assert ordering.
type scriptedStore struct {
	mu         sync.Mutex
	uploadErr  map[string]error // filename -> error
	deleteErr  map[string]error // asset id -> error
	deletedIDs []string
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{
		uploadErr: make(map[string]error),
		deleteErr: make(map[string]error),
	}
}

func (s *scriptedStore) Upload(_ context.Context, input *assetstore.UploadInput) (*assetstore.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.uploadErr[input.Filename]; ok {
		return nil, err
	}

	assetID := "asset-" + input.Filename
	return &assetstore.UploadResult{
		AssetID: assetID,
		URL:     "https://cdn.test/" + assetID,
	}, nil
}

func (s *scriptedStore) Delete(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.deleteErr[assetID]; ok {
		return err
	}

	s.deletedIDs = append(s.deletedIDs, assetID)
	return nil
}

func (s *scriptedStore) deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.deletedIDs...)
}

// --- Helpers ---

var testTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProducer builds a producer against an unreachable broker; event
// publish failures are tolerated by every operation, so tests exercise that
// path for free.
func newTestProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func newTestClock() *clock.Fake {
	return clock.NewFake(testTime)
}

func activeProduct() *domain.Product {
	return &domain.Product{
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
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
}
