package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/repository"
	"github.com/marketa/catalog/pkg/database"
	apperrors "github.com/marketa/catalog/pkg/errors"
)

// ProductRepository implements repository.ProductRepository using PostgreSQL.
// The aggregate is one row: scalar columns plus JSONB images and ratings.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, sku, name, slug, description, category_id, status,
	price, discount, final_price, images, ratings, average_rating, version,
	created_at, updated_at`

// Create inserts a new product into the database.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	imagesJSON, ratingsJSON, err := marshalCollections(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, sku, name, slug, description, category_id, status,
			price, discount, final_price, images, ratings, average_rating, version,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.SKU,
		p.Name,
		p.Slug,
		p.Description,
		p.CategoryID,
		p.Status,
		p.Price,
		p.Discount,
		p.FinalPrice,
		imagesJSON,
		ratingsJSON,
		p.AverageRating,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "sku", p.SKU)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

// GetByID retrieves a product with its images and ratings.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	return r.scanProduct(ctx, query, id)
}

// GetBySKU retrieves a product by its SKU.
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE sku = $1`, productColumns)
	return r.scanProduct(ctx, query, sku)
}

// List returns products matching the given filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argIndex))
		args = append(args, *filter.CategoryID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.Search != nil {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+*filter.Search+"%")
		argIndex++
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("final_price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("final_price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderClause := orderBy(filter)

	// count(*) OVER() folds the total count into the page query.
	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		%s
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, orderClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)

	for rows.Next() {
		var (
			p           domain.Product
			imagesJSON  []byte
			ratingsJSON []byte
		)

		if err := rows.Scan(
			&p.ID, &p.SKU, &p.Name, &p.Slug, &p.Description, &p.CategoryID, &p.Status,
			&p.Price, &p.Discount, &p.FinalPrice, &imagesJSON, &ratingsJSON,
			&p.AverageRating, &p.Version, &p.CreatedAt, &p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}

		if err := unmarshalCollections(&p, imagesJSON, ratingsJSON); err != nil {
			return nil, 0, err
		}

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}

	return products, totalCount, nil
}

// Save persists the whole aggregate conditional on the version it was loaded
// with. The UPDATE matches id AND version; zero rows affected means either a
// concurrent writer bumped the version (Conflict) or the row is gone
// (NotFound). On success the in-memory version is advanced to match the row.
func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	imagesJSON, ratingsJSON, err := marshalCollections(p)
	if err != nil {
		return err
	}

	// UpdatedAt is set by the caller so all mutation timestamps come from
	// the same clock.
	query := `
		UPDATE products
		SET sku = $1, name = $2, slug = $3, description = $4, category_id = $5,
		    status = $6, price = $7, discount = $8, final_price = $9,
		    images = $10, ratings = $11, average_rating = $12,
		    version = version + 1, updated_at = $13
		WHERE id = $14 AND version = $15`

	ct, err := r.pool.Exec(ctx, query,
		p.SKU,
		p.Name,
		p.Slug,
		p.Description,
		p.CategoryID,
		p.Status,
		p.Price,
		p.Discount,
		p.FinalPrice,
		imagesJSON,
		ratingsJSON,
		p.AverageRating,
		p.UpdatedAt,
		p.ID,
		p.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "sku", p.SKU)
		}
		return fmt.Errorf("save product: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check product existence: %w", err)
		}
		if exists {
			return apperrors.Conflict("product", p.ID)
		}
		return apperrors.NotFound("product", p.ID)
	}

	p.Version++
	return nil
}

// Delete removes a product from the database by its ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}

	return nil
}

// scanProduct executes a query expected to return a single product row.
func (r *ProductRepository) scanProduct(ctx context.Context, query string, args ...any) (*domain.Product, error) {
	var (
		p           domain.Product
		imagesJSON  []byte
		ratingsJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Slug, &p.Description, &p.CategoryID, &p.Status,
		&p.Price, &p.Discount, &p.FinalPrice, &imagesJSON, &ratingsJSON,
		&p.AverageRating, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	if err := unmarshalCollections(&p, imagesJSON, ratingsJSON); err != nil {
		return nil, err
	}

	return &p, nil
}

func marshalCollections(p *domain.Product) (imagesJSON, ratingsJSON []byte, err error) {
	images := p.Images
	if images == nil {
		images = []domain.Image{}
	}
	imagesJSON, err = json.Marshal(images)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal images: %w", err)
	}

	ratings := p.Ratings
	if ratings == nil {
		ratings = []domain.Rating{}
	}
	ratingsJSON, err = json.Marshal(ratings)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal ratings: %w", err)
	}

	return imagesJSON, ratingsJSON, nil
}

func unmarshalCollections(p *domain.Product, imagesJSON, ratingsJSON []byte) error {
	if imagesJSON != nil {
		if err := json.Unmarshal(imagesJSON, &p.Images); err != nil {
			return fmt.Errorf("unmarshal images: %w", err)
		}
	}
	if ratingsJSON != nil {
		if err := json.Unmarshal(ratingsJSON, &p.Ratings); err != nil {
			return fmt.Errorf("unmarshal ratings: %w", err)
		}
	}
	return nil
}

// orderBy builds the ORDER BY clause from a whitelisted sort column.
func orderBy(filter repository.ProductFilter) string {
	column := "created_at"
	switch filter.SortBy {
	case "final_price":
		column = "final_price"
	case "average_rating":
		column = "average_rating"
	case "created_at", "":
	}

	direction := "ASC"
	if filter.SortDesc || filter.SortBy == "" {
		direction = "DESC"
	}

	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
