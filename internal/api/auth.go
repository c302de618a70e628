package api

import (
	"net/http"

	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
	"github.com/handcrafted-haven/marketplace/internal/services"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in services.SignUpInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	account, err := s.accounts.SignUp(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	account, err := s.accounts.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	session, err := s.accounts.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.SignOut(r.Context(), middleware.GetAccessToken(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.accounts.ResetPassword(r.Context(), in.Email); err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that address, a reset email is on its way.",
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.DeleteAccount(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
