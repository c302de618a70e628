package domain

import (
	"strings"
	"time"

	"github.com/handcrafted-haven/marketplace/internal/errors"
)

// ContactMessage is a buyer's message to a seller, delivered through the
// seller's profile page.
type ContactMessage struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject,omitempty"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContactMessageInput is a submitted contact message.
type ContactMessageInput struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// Validate checks a contact message submission.
func (in *ContactMessageInput) Validate() error {
	if strings.TrimSpace(in.SenderName) == "" {
		return errors.Validation("Name is required.")
	}
	if err := ValidateEmail(in.SenderEmail); err != nil {
		return err
	}
	if len(in.Subject) > 200 {
		return errors.Validation("Subject must be 200 characters or fewer.")
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return errors.Validation("Message is required.")
	}
	if len(body) > 5000 {
		return errors.Validation("Message must be 5000 characters or fewer.")
	}
	return nil
}
