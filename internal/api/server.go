// Package api exposes the marketplace over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/handcrafted-haven/marketplace/internal/cache"
	"github.com/handcrafted-haven/marketplace/internal/config"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
	"github.com/handcrafted-haven/marketplace/internal/services"
)

const serviceName = "marketplace"

// Server wires the services to their routes.
type Server struct {
	accounts *services.AccountService
	profiles *services.ProfileService
	products *services.ProductService
	reviews  *services.ReviewService
	messages *services.MessageService

	cache       *cache.Cache
	logger      *logging.Logger
	metrics     *metrics.Metrics
	auth        *middleware.AuthMiddleware
	limiter     *middleware.RateLimiter
	cors        *middleware.CORSMiddleware
	limiterStop chan struct{}
}

// Deps are the server's dependencies.
type Deps struct {
	Accounts *services.AccountService
	Profiles *services.ProfileService
	Products *services.ProductService
	Reviews  *services.ReviewService
	Messages *services.MessageService

	Cache   *cache.Cache
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Config  *config.Config
}

// NewServer creates the HTTP server and starts the rate limiter's idle
// cleanup loop; Close stops it.
func NewServer(d Deps) *Server {
	s := &Server{
		accounts:    d.Accounts,
		profiles:    d.Profiles,
		products:    d.Products,
		reviews:     d.Reviews,
		messages:    d.Messages,
		cache:       d.Cache,
		logger:      d.Logger,
		metrics:     d.Metrics,
		auth:        middleware.NewAuthMiddleware(d.Config.Auth.JWTSecret, d.Logger),
		limiter:     middleware.NewRateLimiter(d.Config.RateLimit.RequestsPerSecond, d.Config.RateLimit.Burst, d.Logger),
		cors:        middleware.NewCORSMiddleware(d.Config.CORS.AllowedOrigins),
		limiterStop: make(chan struct{}),
	}
	s.limiter.StartCleanup(time.Minute, s.limiterStop)
	return s
}

// Close stops the server's background workers.
func (s *Server) Close() {
	close(s.limiterStop)
}

// Router builds the route table with its middleware chain.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.MetricsMiddleware(serviceName, s.metrics))
	r.Use(s.cors.Handler)
	// Identity is attached before throttling so authenticated callers get
	// their own bucket instead of sharing the remote address.
	r.Use(s.auth.Optional)
	r.Use(s.limiter.Handler)

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Auth.
	v1.HandleFunc("/auth/signup", s.handleSignUp).Methods("POST")
	v1.HandleFunc("/auth/signin", s.handleSignIn).Methods("POST")
	v1.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST")
	v1.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods("POST")
	v1.Handle("/auth/signout", s.auth.Required(http.HandlerFunc(s.handleSignOut))).Methods("POST")
	v1.Handle("/auth/account", s.auth.Required(http.HandlerFunc(s.handleDeleteAccount))).Methods("DELETE")

	// Profiles and sellers.
	v1.Handle("/profiles/me", s.auth.Required(http.HandlerFunc(s.handleGetMyProfile))).Methods("GET")
	v1.Handle("/profiles/me", s.auth.Required(http.HandlerFunc(s.handleUpdateMyProfile))).Methods("PATCH")
	v1.Handle("/profiles/me/avatar", s.auth.Required(http.HandlerFunc(s.handleUploadAvatar))).Methods("POST")
	v1.HandleFunc("/sellers", s.handleListSellers).Methods("GET")
	v1.HandleFunc("/sellers/{id}", s.handleGetSeller).Methods("GET")
	v1.HandleFunc("/sellers/{id}/messages", s.handleSendMessage).Methods("POST")

	// Products.
	v1.HandleFunc("/products", s.handleListProducts).Methods("GET")
	v1.HandleFunc("/products/featured", s.handleFeaturedProducts).Methods("GET")
	v1.HandleFunc("/products/{id}", s.handleGetProduct).Methods("GET")
	v1.Handle("/products", s.auth.Required(http.HandlerFunc(s.handleCreateProduct))).Methods("POST")
	v1.Handle("/products/{id}", s.auth.Required(http.HandlerFunc(s.handleUpdateProduct))).Methods("PUT")
	v1.Handle("/products/{id}", s.auth.Required(http.HandlerFunc(s.handleDeleteProduct))).Methods("DELETE")
	v1.Handle("/products/{id}/image", s.auth.Required(http.HandlerFunc(s.handleUploadProductImage))).Methods("POST")
	v1.Handle("/products/{id}/image", s.auth.Required(http.HandlerFunc(s.handleRemoveProductImage))).Methods("DELETE")
	v1.Handle("/products/{id}/featured", s.auth.Required(http.HandlerFunc(s.handleSetFeatured))).Methods("PUT")

	// Reviews.
	v1.HandleFunc("/products/{id}/reviews", s.handleListReviews).Methods("GET")
	v1.Handle("/products/{id}/reviews", s.auth.Required(http.HandlerFunc(s.handleSubmitReview))).Methods("POST")
	v1.Handle("/reviews/{id}", s.auth.Required(http.HandlerFunc(s.handleDeleteReview))).Methods("DELETE")

	// Messages.
	v1.Handle("/messages", s.auth.Required(http.HandlerFunc(s.handleInbox))).Methods("GET")
	v1.Handle("/messages/{id}/read", s.auth.Required(http.HandlerFunc(s.handleMarkMessageRead))).Methods("POST")

	return r
}

// handleHealth reports liveness, including cache connectivity when a cache
// is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.cache.Enabled() {
		if err := s.cache.Ping(r.Context()); err != nil {
			status["cache"] = "unreachable"
		} else {
			status["cache"] = "ok"
		}
	}
	httputil.WriteJSON(w, code, status)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.Error(w, r, s.logger, err)
}
