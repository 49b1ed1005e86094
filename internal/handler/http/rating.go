package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketa/catalog/internal/service"
	apperrors "github.com/marketa/catalog/pkg/errors"
	"github.com/marketa/catalog/pkg/httputil"
	"github.com/marketa/catalog/pkg/middleware"
	"github.com/marketa/catalog/pkg/validator"
)

// RatingHandler exposes rating submission and listing.
type RatingHandler struct {
	ratings *service.RatingService
	logger  *slog.Logger
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(ratings *service.RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{ratings: ratings, logger: logger}
}

type submitRatingRequest struct {
	Score  int    `json:"score" validate:"required,gte=1,lte=5"`
	Review string `json:"review,omitempty" validate:"omitempty,min=10,max=2048"`
}

// Submit handles POST /products/{id}/ratings. The rater is the authenticated
// user; submitting again replaces the previous rating.
func (h *RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	raterID := middleware.UserIDFromContext(r.Context())
	if raterID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req submitRatingRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.ratings.SubmitRating(r.Context(), &service.SubmitRatingInput{
		ProductID: chi.URLParam(r, "id"),
		RaterID:   raterID,
		Score:     req.Score,
		Review:    req.Review,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// List handles GET /products/{id}/ratings.
func (h *RatingHandler) List(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.ratings.ListRatings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ratings})
}
