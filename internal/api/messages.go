package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
)

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactMessageInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	msg, err := s.messages.Send(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	ctx := r.Context()
	messages, err := s.messages.Inbox(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), unread)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": messages})
}

func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := s.messages.MarkRead(ctx, middleware.GetAccessToken(ctx), middleware.GetUserID(ctx), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}
