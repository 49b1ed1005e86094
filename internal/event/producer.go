package event

import (
	"context"
	"log/slog"

	"github.com/marketa/catalog/internal/domain"
	pkgkafka "github.com/marketa/catalog/pkg/kafka"
)

// Kafka topic constants for catalog domain events.
const (
	TopicProductCreated       = "catalog.product.created"
	TopicProductUpdated       = "catalog.product.updated"
	TopicProductDeleted       = "catalog.product.deleted"
	TopicProductRated         = "catalog.product.rated"
	TopicProductImagesChanged = "catalog.product.images_changed"
)

// Aggregate type constant.
const AggregateTypeProduct = "product"

// Source identifier for events originating from the catalog service.
const SourceCatalog = "catalog-api"

// ProductData is the payload shared by product.created and product.updated events.
type ProductData struct {
	ID            string  `json:"id"`
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	CategoryID    *string `json:"category_id,omitempty"`
	Status        string  `json:"status"`
	Price         float64 `json:"price"`
	Discount      float64 `json:"discount"`
	FinalPrice    float64 `json:"final_price"`
	AverageRating float64 `json:"average_rating"`
	ImageCount    int     `json:"image_count"`
}

// ProductDeletedData is the payload for a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// ProductRatedData is the payload for a product.rated event.
type ProductRatedData struct {
	ProductID     string  `json:"product_id"`
	RaterID       string  `json:"rater_id"`
	Score         int     `json:"score"`
	AverageRating float64 `json:"average_rating"`
}

// ImagesChangedData is the payload for a product.images_changed event.
type ImagesChangedData struct {
	ProductID  string   `json:"product_id"`
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	ImageCount int      `json:"image_count"`
}

// Producer publishes catalog domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the catalog service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func productData(p *domain.Product) ProductData {
	return ProductData{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Slug:          p.Slug,
		CategoryID:    p.CategoryID,
		Status:        p.Status,
		Price:         p.Price,
		Discount:      p.Discount,
		FinalPrice:    p.FinalPrice,
		AverageRating: p.AverageRating,
		ImageCount:    len(p.Images),
	}
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product.ID, product.Version, productData(product))
}

// PublishProductUpdated publishes a product.updated event.
func (p *Producer) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, product.ID, product.Version, productData(product))
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, productID string) error {
	return p.publish(ctx, TopicProductDeleted, productID, 0, ProductDeletedData{ID: productID})
}

// PublishProductRated publishes a product.rated event.
func (p *Producer) PublishProductRated(ctx context.Context, product *domain.Product, rating domain.Rating) error {
	return p.publish(ctx, TopicProductRated, product.ID, product.Version, ProductRatedData{
		ProductID:     product.ID,
		RaterID:       rating.RaterID,
		Score:         rating.Score,
		AverageRating: product.AverageRating,
	})
}

// PublishImagesChanged publishes a product.images_changed event.
func (p *Producer) PublishImagesChanged(ctx context.Context, product *domain.Product, added, removed []string) error {
	return p.publish(ctx, TopicProductImagesChanged, product.ID, product.Version, ImagesChangedData{
		ProductID:  product.ID,
		Added:      added,
		Removed:    removed,
		ImageCount: len(product.Images),
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, version int64, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeProduct, version, SourceCatalog, data)
	if err != nil {
		return err
	}
	return p.kafka.Publish(ctx, topic, evt)
}
