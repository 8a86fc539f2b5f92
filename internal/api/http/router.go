package http

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Tcdrol/url-shortener/pkg/middleware/ratelimit"
)

// getValidate initializes the validator used for request payloads, reporting
// field names from their JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes the HTTP router with all routes and middleware. A
// nil limiter disables rate limiting on the create endpoint.
func NewRouter(logger *httplog.Logger, urlSvc urlService, limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "X-Owner-ID"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	h := newURLHandler(urlSvc, getValidate())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/shorturl", func(r chi.Router) {
			if limiter != nil {
				r.With(ratelimit.New(limiter)).Post("/", h.shortenURL)
			} else {
				r.Post("/", h.shortenURL)
			}

			r.Get("/", h.listURLs)

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Delete("/", h.deleteURL)
				r.Get("/stats", h.getURLStats)
			})
		})
	})

	r.Get("/{shortCode}", h.redirect)

	return r
}
