package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketa/catalog/internal/auth"
	"github.com/marketa/catalog/internal/domain"
	"github.com/marketa/catalog/pkg/health"
	"github.com/marketa/catalog/pkg/middleware"
)

// RouterConfig bundles the dependencies the router needs.
type RouterConfig struct {
	ServiceName    string
	Logger         *slog.Logger
	JWTManager     *auth.JWTManager
	Health         *health.Handler
	AllowedOrigins []string

	Products   *ProductHandler
	Images     *ImageHandler
	Ratings    *RatingHandler
	Categories *CategoryHandler
	Auth       *AuthHandler
}

// NewRouter assembles the HTTP routes and middleware stack. Mutating catalog
// routes require the admin role; rating submission requires any authenticated
// user.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.AllowedOrigins
	}
	r.Use(middleware.CORS(corsCfg))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authenticate := middleware.Auth(tokenValidator(cfg.JWTManager))
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.With(authenticate).Get("/me", cfg.Auth.Me)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/{id}", cfg.Products.Get)
			r.Get("/sku/{sku}", cfg.Products.GetBySKU)
			r.Get("/{id}/ratings", cfg.Ratings.List)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/{id}/ratings", cfg.Ratings.Submit)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticate, adminOnly)
				r.Post("/", cfg.Products.Create)
				r.Put("/{id}", cfg.Products.Update)
				r.Patch("/{id}", cfg.Products.Update)
				r.Delete("/{id}", cfg.Products.Delete)
				r.Post("/{id}/images", cfg.Images.Add)
				r.Put("/{id}/images", cfg.Images.Replace)
				r.Delete("/{id}/images/{imageID}", cfg.Images.Delete)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", cfg.Categories.List)
			r.Get("/{id}", cfg.Categories.Get)
			r.With(authenticate, adminOnly).Post("/", cfg.Categories.Create)
		})
	})

	return r
}

// tokenValidator adapts the JWT manager to the auth middleware's interface.
func tokenValidator(m *auth.JWTManager) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := m.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		}, nil
	}
}
