package services

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// ProfileService reads and updates marketplace profiles.
type ProfileService struct {
	backend *supabase.Client
	bucket  string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewProfileService creates a profile service. Avatars are stored in the
// given bucket under the user's id.
func NewProfileService(backend *supabase.Client, bucket string, logger *logging.Logger, m *metrics.Metrics) *ProfileService {
	return &ProfileService{backend: backend, bucket: bucket, logger: logger, metrics: m}
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, accessToken, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	_, err := s.backend.From(tableProfiles).
		Select("*").
		Eq("id", userID).
		Single().
		WithToken(accessToken).
		ExecuteInto(ctx, &profile)
	s.metrics.RecordBackendRequest("profile_get", err)
	if err != nil {
		return nil, notFoundAsProfile(err)
	}
	return &profile, nil
}

// UpdateProfileInput is a partial profile update. Nil fields are left
// unchanged.
type UpdateProfileInput struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	Role        *string `json:"role,omitempty"`
}

// Update applies a partial update to the caller's profile.
func (s *ProfileService) Update(ctx context.Context, accessToken, userID string, in UpdateProfileInput) (*domain.Profile, error) {
	patch := make(map[string]interface{})
	if in.DisplayName != nil {
		if err := domain.ValidateDisplayName(*in.DisplayName); err != nil {
			return nil, err
		}
		patch["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.Bio != nil {
		if err := domain.ValidateBio(*in.Bio); err != nil {
			return nil, err
		}
		patch["bio"] = *in.Bio
	}
	if in.Location != nil {
		if err := domain.ValidateLocation(*in.Location); err != nil {
			return nil, err
		}
		patch["location"] = strings.TrimSpace(*in.Location)
	}
	if in.Role != nil {
		if !domain.ValidRole(*in.Role) {
			return nil, errors.Validation("Unknown role.")
		}
		patch["role"] = domain.NormalizeRole(*in.Role)
	}
	if len(patch) == 0 {
		return nil, errors.Validation("Nothing to update.")
	}

	var updated []domain.Profile
	_, err := s.backend.From(tableProfiles).
		Update(patch).
		Eq("id", userID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("profile_update", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Profile")
	}
	return &updated[0], nil
}

// UploadAvatar stores a profile picture and records its public URL on the
// caller's profile. The previous avatar, if any, is removed afterwards.
func (s *ProfileService) UploadAvatar(ctx context.Context, accessToken, userID, contentType string, data []byte) (*domain.Profile, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, errors.Validation("Images must be JPEG, PNG or WebP.")
	}
	if len(data) == 0 {
		return nil, errors.Validation("Image is empty.")
	}
	if len(data) > maxImageBytes {
		return nil, errors.Validation("Images must be 5 MB or smaller.")
	}

	current, err := s.Get(ctx, accessToken, userID)
	if err != nil {
		return nil, err
	}

	objectPath := path.Join(userID, "avatar-"+uuid.NewString()+ext)
	err = s.backend.Storage().UploadWithToken(ctx, s.bucket, objectPath, data, supabase.UploadOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	}, accessToken)
	s.metrics.RecordBackendRequest("avatar_upload", err)
	if err != nil {
		return nil, mapBackendError(err)
	}

	publicURL := s.backend.Storage().GetPublicURL(s.bucket, objectPath)
	var updated []domain.Profile
	_, err = s.backend.From(tableProfiles).
		Update(map[string]interface{}{"avatar_url": publicURL}).
		Eq("id", userID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("profile_update", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Profile")
	}

	if old := current.AvatarURL; old != "" && old != publicURL {
		if oldPath := objectPathFromURL(s.backend, s.bucket, old); oldPath != "" {
			if err := s.backend.Storage().Delete(ctx, s.bucket, []string{oldPath}); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("deleting replaced avatar failed")
			}
		}
	}
	return &updated[0], nil
}

// SellerPage is the number of sellers returned per page.
const SellerPage = 20

// Seller is a seller profile with their listed products.
type Seller struct {
	domain.Profile
	Products []domain.Product `json:"products,omitempty"`
}

// ListSellers returns seller profiles, newest first.
func (s *ProfileService) ListSellers(ctx context.Context, page int) ([]domain.Profile, int64, error) {
	if page < 1 {
		page = 1
	}

	var sellers []domain.Profile
	res, err := s.backend.From(tableProfiles).
		Select("*").
		Eq("role", domain.RoleSeller).
		Order("created_at", supabase.OrderDesc).
		Limit(SellerPage).
		Offset((page-1)*SellerPage).
		Count("exact").
		ExecuteInto(ctx, &sellers)
	s.metrics.RecordBackendRequest("sellers_list", err)
	if err != nil {
		return nil, 0, mapBackendError(err)
	}
	return sellers, res.Count, nil
}

// GetSeller returns one seller's public profile together with their
// products.
func (s *ProfileService) GetSeller(ctx context.Context, sellerID string) (*Seller, error) {
	var profile domain.Profile
	_, err := s.backend.From(tableProfiles).
		Select("*").
		Eq("id", sellerID).
		Eq("role", domain.RoleSeller).
		Single().
		ExecuteInto(ctx, &profile)
	s.metrics.RecordBackendRequest("seller_get", err)
	if err != nil {
		return nil, notFoundAsSeller(err)
	}

	seller := &Seller{Profile: profile}
	_, err = s.backend.From(tableProducts).
		Select("*").
		Eq("seller_id", sellerID).
		Order("created_at", supabase.OrderDesc).
		ExecuteInto(ctx, &seller.Products)
	s.metrics.RecordBackendRequest("seller_products", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return seller, nil
}

// A Single() against zero rows comes back as a PostgREST 406; both that and
// a plain 404 mean the record does not exist.
func notFoundAsProfile(err error) error { return notFoundAs(err, "Profile") }
func notFoundAsSeller(err error) error  { return notFoundAs(err, "Seller") }

func notFoundAs(err error, resource string) error {
	serr := mapBackendError(err)
	if serr.Code == errors.CodeNotFound || isNoRows(serr) {
		return errors.NotFound(resource)
	}
	return serr
}

func isNoRows(serr *errors.ServiceError) bool {
	if serr.Details == nil {
		return false
	}
	msg, _ := serr.Details["backend_message"].(string)
	return strings.Contains(msg, "0 rows") || strings.Contains(msg, "multiple (or no) rows")
}
