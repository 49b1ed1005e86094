package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/internal/repository"
	"github.com/marketa/catalog/internal/service"
	"github.com/marketa/catalog/pkg/httputil"
	"github.com/marketa/catalog/pkg/validator"
)

// ProductHandler exposes product CRUD over HTTP.
type ProductHandler struct {
	products *service.ProductService
	logger   *slog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

type createProductRequest struct {
	SKU         string  `json:"sku" validate:"required,max=64"`
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=4096"`
	CategoryID  *string `json:"category_id,omitempty" validate:"omitempty,uuid"`
	Price       float64 `json:"price" validate:"gte=0"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=100"`
}

type updateProductRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=4096"`
	CategoryID  *string  `json:"category_id,omitempty" validate:"omitempty,uuid"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive out_of_stock"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Discount    *float64 `json:"discount,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Create handles POST /products.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.products.CreateProduct(r.Context(), &service.CreateProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Price:       req.Price,
		Discount:    req.Discount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: product})
}

// Get handles GET /products/{id}.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// GetBySKU handles GET /products/sku/{sku}.
func (h *ProductHandler) GetBySKU(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// List handles GET /products with filter and pagination query parameters.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseProductFilter(r)

	products, total, err := h.products.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(products, total, page, perPage))
}

// Update handles PUT and PATCH /products/{id}. All fields are optional;
// absent fields keep their current values.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), chi.URLParam(r, "id"), &service.UpdateProductInput{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Status:      req.Status,
		Price:       req.Price,
		Discount:    req.Discount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// Delete handles DELETE /products/{id}. Remote assets are released as part of
// the cascade; failures there never block the deletion.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseProductFilter(r *http.Request) repository.ProductFilter {
	q := r.URL.Query()
	filter := repository.ProductFilter{
		SortBy:   q.Get("sort_by"),
		SortDesc: q.Get("sort_dir") != "asc",
	}

	if v := q.Get("category_id"); v != "" {
		filter.CategoryID = &v
	}
	if v := q.Get("status"); v != "" && domain.IsValidStatus(v) {
		filter.Status = &v
	}
	if v := q.Get("search"); v != "" {
		filter.Search = &v
	}
	if v := q.Get("min_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPrice = &f
		}
	}
	if v := q.Get("max_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = &f
		}
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Page = n
		}
	}
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.PerPage = n
		}
	}

	return filter
}
