package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
)

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	reviews, err := s.reviews.ListForProduct(r.Context(), mux.Vars(r)["id"], page)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var in domain.ReviewInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	review, err := s.reviews.Submit(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, review)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.reviews.Delete(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
