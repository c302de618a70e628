package services

import (
	"context"
	"strings"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// MessageService delivers contact messages from visitors to sellers.
type MessageService struct {
	backend *supabase.Client
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewMessageService creates a message service.
func NewMessageService(backend *supabase.Client, logger *logging.Logger, m *metrics.Metrics) *MessageService {
	return &MessageService{backend: backend, logger: logger, metrics: m}
}

// Send delivers a message to a seller. The sender does not need an
// account; the row is written with the service key after the seller is
// verified to exist.
func (s *MessageService) Send(ctx context.Context, sellerID string, in domain.ContactMessageInput) (*domain.ContactMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var seller domain.Profile
	_, err := s.backend.From(tableProfiles).
		Select("id,role").
		Eq("id", sellerID).
		Eq("role", domain.RoleSeller).
		Single().
		ExecuteInto(ctx, &seller)
	s.metrics.RecordBackendRequest("seller_get", err)
	if err != nil {
		return nil, notFoundAsSeller(err)
	}

	var created []domain.ContactMessage
	_, err = s.backend.From(tableMessages).
		Insert(map[string]interface{}{
			"seller_id":    sellerID,
			"sender_name":  strings.TrimSpace(in.SenderName),
			"sender_email": strings.TrimSpace(in.SenderEmail),
			"subject":      strings.TrimSpace(in.Subject),
			"body":         strings.TrimSpace(in.Body),
		}).
		WithServiceKey().
		ExecuteInto(ctx, &created)
	s.metrics.RecordBackendRequest("message_send", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(created) == 0 {
		return nil, errors.Internal("Message delivery returned no record.", nil)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"seller_id":  sellerID,
		"message_id": created[0].ID,
	}).Info("contact message delivered")
	return &created[0], nil
}

// Inbox returns the caller's received messages, newest first. Row-level
// security restricts rows to the seller's own inbox.
func (s *MessageService) Inbox(ctx context.Context, accessToken, sellerID string, unreadOnly bool) ([]domain.ContactMessage, error) {
	q := s.backend.From(tableMessages).
		Select("*").
		Eq("seller_id", sellerID)
	if unreadOnly {
		q = q.Eq("read", false)
	}

	var messages []domain.ContactMessage
	_, err := q.
		Order("created_at", supabase.OrderDesc).
		WithToken(accessToken).
		ExecuteInto(ctx, &messages)
	s.metrics.RecordBackendRequest("messages_inbox", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return messages, nil
}

// MarkRead marks one of the caller's messages as read.
func (s *MessageService) MarkRead(ctx context.Context, accessToken, sellerID, messageID string) (*domain.ContactMessage, error) {
	var updated []domain.ContactMessage
	_, err := s.backend.From(tableMessages).
		Update(map[string]interface{}{"read": true}).
		Eq("id", messageID).
		Eq("seller_id", sellerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("message_mark_read", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Message")
	}
	return &updated[0], nil
}
