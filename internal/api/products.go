package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
	"github.com/handcrafted-haven/marketplace/internal/services"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	minPrice, err := priceParam(q.Get("min_price"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	maxPrice, err := priceParam(q.Get("max_price"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	list, err := s.products.List(r.Context(), services.ListParams{
		Category: q.Get("category"),
		SellerID: q.Get("seller_id"),
		Search:   q.Get("q"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Sort:     q.Get("sort"),
		Order:    q.Get("order"),
		Page:     page,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func priceParam(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Validation("Price filters must be numbers.")
	}
	return &f, nil
}

func (s *Server) handleFeaturedProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	products, err := s.products.Featured(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.products.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	product, err := s.products.Create(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	product, err := s.products.Update(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.products.Delete(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadProductImage accepts the raw image bytes with their content
// type, not multipart form data.
func (s *Server) handleUploadProductImage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 6<<20))
	if err != nil {
		s.respondError(w, r, errors.Validation("Images must be 5 MB or smaller."))
		return
	}

	ctx := r.Context()
	product, err := s.products.UploadImage(ctx,
		middleware.GetAccessToken(ctx),
		middleware.GetUserID(ctx),
		mux.Vars(r)["id"],
		r.Header.Get("Content-Type"),
		data,
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (s *Server) handleRemoveProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := s.products.RemoveImage(ctx,
		middleware.GetAccessToken(ctx),
		middleware.GetUserID(ctx),
		mux.Vars(r)["id"],
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (s *Server) handleSetFeatured(w http.ResponseWriter, r *http.Request) {
	if logging.GetRole(r.Context()) != "service_role" {
		s.respondError(w, r, errors.Forbidden("Only administrators can feature products."))
		return
	}

	var in struct {
		Featured bool `json:"featured"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := s.products.SetFeatured(r.Context(), mux.Vars(r)["id"], in.Featured)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}
