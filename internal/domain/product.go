package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/marketa/catalog/pkg/errors"
)

// Product status constants.
const (
	ProductStatusActive     = "active"
	ProductStatusInactive   = "inactive"
	ProductStatusOutOfStock = "out_of_stock"
)

// Image is an attachment owned by a product. ID is a generated sub-identifier
// unique within the product; AssetID is the external store's handle used for
// deletion. The same asset may appear more than once, so entries are keyed by
// ID, never by AssetID.
type Image struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	AssetID string    `json:"asset_id"`
	AddedAt time.Time `json:"added_at"`
}

// Rating is a single rater's submission. A product holds at most one rating
// per rater; resubmission replaces score, review, and timestamp in place.
type Rating struct {
	RaterID string    `json:"rater_id"`
	Score   int       `json:"score"`
	Review  string    `json:"review,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

// Product is the aggregate root. Images and ratings are owned child
// collections mutated only through the methods below, which keep the derived
// fields (FinalPrice, AverageRating) in sync with their inputs. Version backs
// the conditional save in the repository.
type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	CategoryID    *string   `json:"category_id,omitempty"`
	Status        string    `json:"status"`
	Price         float64   `json:"price"`
	Discount      float64   `json:"discount"`
	FinalPrice    float64   `json:"final_price"`
	Images        []Image   `json:"images"`
	Ratings       []Rating  `json:"ratings"`
	AverageRating float64   `json:"average_rating"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidStatuses returns the set of valid product statuses.
func ValidStatuses() []string {
	return []string{ProductStatusActive, ProductStatusInactive, ProductStatusOutOfStock}
}

// IsValidStatus checks whether the given status string is a valid product status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ComputeFinalPrice returns the price after discount: price − price*(discount/100)
// when discount > 0, otherwise price unchanged. No rounding is applied.
func ComputeFinalPrice(price, discount float64) float64 {
	if discount > 0 {
		return price - price*(discount/100)
	}
	return price
}

// ComputeAverageRating returns the mean of all scores, or 0 when there are no
// ratings.
func ComputeAverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Score
	}
	return float64(sum) / float64(len(ratings))
}

// SetPricing updates price and discount together and recomputes FinalPrice.
func (p *Product) SetPricing(price, discount float64) error {
	if price < 0 {
		return apperrors.InvalidInput("price must not be negative")
	}
	if discount < 0 || discount > 100 {
		return apperrors.InvalidInput("discount must be between 0 and 100")
	}
	p.Price = price
	p.Discount = discount
	p.FinalPrice = ComputeFinalPrice(price, discount)
	return nil
}

// Rate records a rating for raterID, replacing any existing rating by the same
// rater including its timestamp. AverageRating is recomputed before returning,
// so the aggregate is never observed with a stale mean.
func (p *Product) Rate(raterID string, score int, review string, at time.Time) error {
	if raterID == "" {
		return apperrors.InvalidInput("rater id is required")
	}
	if score < 1 || score > 5 {
		return apperrors.InvalidInput("score must be between 1 and 5")
	}
	if review != "" && len(review) < 10 {
		return apperrors.InvalidInput("review must be at least 10 characters")
	}

	rating := Rating{RaterID: raterID, Score: score, Review: review, RatedAt: at}

	replaced := false
	for i := range p.Ratings {
		if p.Ratings[i].RaterID == raterID {
			p.Ratings[i] = rating
			replaced = true
			break
		}
	}
	if !replaced {
		p.Ratings = append(p.Ratings, rating)
	}

	p.AverageRating = ComputeAverageRating(p.Ratings)
	return nil
}

// RatingBy returns the rating submitted by raterID, if any.
func (p *Product) RatingBy(raterID string) (Rating, bool) {
	for _, r := range p.Ratings {
		if r.RaterID == raterID {
			return r, true
		}
	}
	return Rating{}, false
}

// NewImage creates an image entry with a generated sub-identifier.
func NewImage(url, assetID string, at time.Time) Image {
	return Image{
		ID:      uuid.New().String(),
		URL:     url,
		AssetID: assetID,
		AddedAt: at,
	}
}

// AppendImages adds entries to the end of the image sequence, preserving the
// order given.
func (p *Product) AppendImages(images []Image) {
	p.Images = append(p.Images, images...)
}

// ImageByID returns the image with the given sub-identifier, if present.
func (p *Product) ImageByID(id string) (Image, bool) {
	for _, img := range p.Images {
		if img.ID == id {
			return img, true
		}
	}
	return Image{}, false
}

// RemoveImage deletes the image with the given sub-identifier from the
// sequence. It returns an error when no such entry exists.
func (p *Product) RemoveImage(id string) error {
	for i, img := range p.Images {
		if img.ID == id {
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("image", id)
}
