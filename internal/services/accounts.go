package services

import (
	"context"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// AccountService handles registration, sign-in and account lifecycle.
type AccountService struct {
	backend *supabase.Client
	bucket  string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewAccountService creates an account service. bucket is the storage
// bucket whose objects are removed when an account is deleted.
func NewAccountService(backend *supabase.Client, bucket string, logger *logging.Logger, m *metrics.Metrics) *AccountService {
	return &AccountService{backend: backend, bucket: bucket, logger: logger, metrics: m}
}

// SignUpInput registers a new account.
type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Account is a session together with the user's marketplace profile.
type Account struct {
	Session *supabase.Session `json:"session"`
	Profile *domain.Profile   `json:"profile"`
}

// SignUp registers an auth user and creates its marketplace profile.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*Account, error) {
	if err := domain.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := domain.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, err
	}
	if !domain.ValidRole(in.Role) {
		return nil, errors.Validation("Unknown role.")
	}
	role := domain.NormalizeRole(in.Role)

	session, err := s.backend.Auth().SignUp(ctx, supabase.SignUpRequest{
		Email:    in.Email,
		Password: in.Password,
		Data: map[string]interface{}{
			"display_name": in.DisplayName,
			"role":         role,
		},
	})
	s.metrics.RecordBackendRequest("auth_signup", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if session.User == nil {
		return nil, errors.Internal("Sign up did not return a user.", nil)
	}

	// The profile row is written with the service key: the fresh session
	// may not be usable yet when email confirmation is on.
	var created []domain.Profile
	_, err = s.backend.From(tableProfiles).
		Insert(map[string]interface{}{
			"id":           session.User.ID,
			"email":        in.Email,
			"display_name": in.DisplayName,
			"role":         role,
		}).
		WithServiceKey().
		ExecuteInto(ctx, &created)
	s.metrics.RecordBackendRequest("profile_create", err)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("profile creation failed after signup")
		return nil, mapBackendError(err)
	}

	account := &Account{Session: session}
	if len(created) > 0 {
		account.Profile = &created[0]
	}
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": session.User.ID,
		"role":    role,
	}).Info("account created")
	return account, nil
}

// SignIn authenticates a user and loads their profile.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*Account, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.Validation("Password is required.")
	}

	session, err := s.backend.Auth().SignInWithPassword(ctx, email, password)
	s.metrics.RecordBackendRequest("auth_signin", err)
	if err != nil {
		s.logger.LogSecurityEvent(ctx, "signin_failed", map[string]interface{}{"email": email})
		return nil, mapBackendError(err)
	}

	account := &Account{Session: session}
	if session.User != nil {
		profile, err := s.loadProfile(ctx, session.AccessToken, session.User.ID)
		if err != nil {
			// A missing profile row must not lock the user out.
			s.logger.WithContext(ctx).WithError(err).Warn("profile load failed on signin")
		} else {
			account.Profile = profile
		}
	}
	return account, nil
}

// Refresh exchanges a refresh token for a new session.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*supabase.Session, error) {
	if refreshToken == "" {
		return nil, errors.Validation("Refresh token is required.")
	}
	session, err := s.backend.Auth().RefreshToken(ctx, refreshToken)
	s.metrics.RecordBackendRequest("auth_refresh", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return session, nil
}

// SignOut revokes the caller's session.
func (s *AccountService) SignOut(ctx context.Context, accessToken string) error {
	err := s.backend.Auth().SignOut(ctx, accessToken)
	s.metrics.RecordBackendRequest("auth_signout", err)
	if err != nil {
		return mapBackendError(err)
	}
	return nil
}

// ResetPassword sends a password recovery email. It succeeds even for
// unknown addresses so it cannot be used to probe for accounts.
func (s *AccountService) ResetPassword(ctx context.Context, email string) error {
	if err := domain.ValidateEmail(email); err != nil {
		return err
	}
	err := s.backend.Auth().ResetPasswordForEmail(ctx, email)
	s.metrics.RecordBackendRequest("auth_reset_password", err)
	if err != nil {
		serr := mapBackendError(err)
		if serr.Code == errors.CodeRateLimited {
			return serr
		}
		s.logger.WithContext(ctx).WithError(err).Warn("password reset request failed")
	}
	return nil
}

// DeleteAccount removes the user's data, uploaded files and auth record.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	// Dependent rows first. Review and message rows cascade from products
	// and profiles in the schema; deleting explicitly keeps the behavior
	// independent of it.
	for _, del := range []struct {
		table  string
		column string
	}{
		{tableReviews, "reviewer_id"},
		{tableMessages, "seller_id"},
		{tableProducts, "seller_id"},
		{tableProfiles, "id"},
	} {
		_, err := s.backend.From(del.table).Delete().Eq(del.column, userID).WithServiceKey().Execute(ctx)
		s.metrics.RecordBackendRequest("account_delete_rows", err)
		if err != nil {
			return mapBackendError(err)
		}
	}

	// Uploaded files live under the user's id prefix.
	objects, err := s.backend.Storage().List(ctx, s.bucket, userID+"/", 1000)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("listing user files failed during account deletion")
	} else if len(objects) > 0 {
		paths := make([]string, len(objects))
		for i, obj := range objects {
			paths[i] = userID + "/" + obj.Name
		}
		if err := s.backend.Storage().Delete(ctx, s.bucket, paths); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("deleting user files failed during account deletion")
		}
	}

	err = s.backend.Auth().AdminDeleteUser(ctx, userID)
	s.metrics.RecordBackendRequest("auth_admin_delete", err)
	if err != nil {
		return mapBackendError(err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{"user_id": userID}).Info("account deleted")
	return nil
}

func (s *AccountService) loadProfile(ctx context.Context, accessToken, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	_, err := s.backend.From(tableProfiles).
		Select("*").
		Eq("id", userID).
		Single().
		WithToken(accessToken).
		ExecuteInto(ctx, &profile)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return &profile, nil
}
