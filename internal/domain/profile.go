// Package domain holds the marketplace's data model and its validation
// rules. Services validate input here before it reaches the backend.
package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/handcrafted-haven/marketplace/internal/errors"
)

// Roles a profile can hold. Sellers can list products and receive messages.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Profile is a user's public marketplace profile, stored in the profiles
// table keyed by the auth user id.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	Location    string    `json:"location,omitempty"`
	Role        string    `json:"role"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsSeller reports whether the profile can list products.
func (p *Profile) IsSeller() bool {
	return p.Role == RoleSeller
}

// NormalizeRole maps role aliases to their canonical value. "artisan" is the
// customer-facing name for sellers.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "artisan", RoleSeller:
		return RoleSeller
	default:
		return RoleBuyer
	}
}

// ValidRole reports whether the raw role is one we accept.
func ValidRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", RoleBuyer, RoleSeller, "artisan":
		return true
	default:
		return false
	}
}

// ValidateEmail checks the address is plausible. Deliverability is the
// auth backend's problem.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.Validation("Email is required.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.Validation("Please enter a valid email address.")
	}
	return nil
}

// ValidatePassword enforces the minimum the auth backend requires.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return errors.Validation("Password must be at least 6 characters.")
	}
	return nil
}

// ValidateDisplayName checks a profile display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.Validation("Display name is required.")
	}
	if len(name) > 80 {
		return errors.Validation("Display name must be 80 characters or fewer.")
	}
	return nil
}

// ValidateLocation checks a profile location.
func ValidateLocation(location string) error {
	if len(location) > 120 {
		return errors.Validation("Location must be 120 characters or fewer.")
	}
	return nil
}

// ValidateBio checks a profile bio.
func ValidateBio(bio string) error {
	if len(bio) > 2000 {
		return errors.Validation("Bio must be 2000 characters or fewer.")
	}
	return nil
}
