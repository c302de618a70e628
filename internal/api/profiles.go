package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
	"github.com/handcrafted-haven/marketplace/internal/services"
)

func (s *Server) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.Get(r.Context(), middleware.GetAccessToken(r.Context()), middleware.GetUserID(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	var in services.UpdateProfileInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	profile, err := s.profiles.Update(r.Context(), middleware.GetAccessToken(r.Context()), middleware.GetUserID(r.Context()), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// handleUploadAvatar accepts the raw image bytes with their content type,
// not multipart form data.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 6<<20))
	if err != nil {
		s.respondError(w, r, errors.Validation("Images must be 5 MB or smaller."))
		return
	}

	ctx := r.Context()
	profile, err := s.profiles.UploadAvatar(ctx,
		middleware.GetAccessToken(ctx),
		middleware.GetUserID(ctx),
		r.Header.Get("Content-Type"),
		data,
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	sellers, total, err := s.profiles.ListSellers(r.Context(), page)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": sellers,
		"total": total,
	})
}

func (s *Server) handleGetSeller(w http.ResponseWriter, r *http.Request) {
	seller, err := s.profiles.GetSeller(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, seller)
}
