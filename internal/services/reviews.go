package services

import (
	"context"

	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// ReviewService manages product reviews.
type ReviewService struct {
	backend *supabase.Client
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewReviewService creates a review service.
func NewReviewService(backend *supabase.Client, logger *logging.Logger, m *metrics.Metrics) *ReviewService {
	return &ReviewService{backend: backend, logger: logger, metrics: m}
}

// ReviewPage is the number of reviews returned per page.
const ReviewPage = 10

// ProductReviews is one page of a product's reviews with the product-wide
// aggregate.
type ProductReviews struct {
	Reviews []domain.Review      `json:"reviews"`
	Summary domain.ReviewSummary `json:"summary"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
}

// ListForProduct returns a page of a product's reviews, newest first. The
// summary covers every review of the product, not just the page.
func (s *ReviewService) ListForProduct(ctx context.Context, productID string, page int) (*ProductReviews, error) {
	if page < 1 {
		page = 1
	}

	var reviews []domain.Review
	res, err := s.backend.From(tableReviews).
		Select("*").
		Eq("product_id", productID).
		Order("created_at", supabase.OrderDesc).
		Limit(ReviewPage).
		Offset((page-1)*ReviewPage).
		Count("exact").
		ExecuteInto(ctx, &reviews)
	s.metrics.RecordBackendRequest("reviews_list", err)
	if err != nil {
		return nil, mapBackendError(err)
	}

	var ratings []domain.Review
	_, err = s.backend.From(tableReviews).
		Select("rating").
		Eq("product_id", productID).
		ExecuteInto(ctx, &ratings)
	s.metrics.RecordBackendRequest("reviews_summary", err)
	if err != nil {
		return nil, mapBackendError(err)
	}

	return &ProductReviews{
		Reviews: reviews,
		Summary: domain.Summarize(productID, ratings),
		Total:   res.Count,
		Page:    page,
	}, nil
}

// Submit writes the caller's review of a product. A second submission for
// the same product replaces the first.
func (s *ReviewService) Submit(ctx context.Context, accessToken, reviewerID, productID string, in domain.ReviewInput) (*domain.Review, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Sellers cannot review their own products.
	var owned []domain.Product
	_, err := s.backend.From(tableProducts).
		Select("id").
		Eq("id", productID).
		Eq("seller_id", reviewerID).
		ExecuteInto(ctx, &owned)
	s.metrics.RecordBackendRequest("review_ownership_check", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(owned) > 0 {
		return nil, errors.Forbidden("You cannot review your own product.")
	}

	var saved []domain.Review
	_, err = s.backend.From(tableReviews).
		Upsert(map[string]interface{}{
			"product_id":  productID,
			"reviewer_id": reviewerID,
			"rating":      in.Rating,
			"comment":     in.Comment,
		}, "product_id,reviewer_id").
		WithToken(accessToken).
		ExecuteInto(ctx, &saved)
	s.metrics.RecordBackendRequest("review_submit", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(saved) == 0 {
		return nil, errors.NotFound("Product")
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": productID,
		"rating":     in.Rating,
	}).Info("review submitted")
	return &saved[0], nil
}

// Delete removes the caller's review.
func (s *ReviewService) Delete(ctx context.Context, accessToken, reviewerID, reviewID string) error {
	var deleted []domain.Review
	_, err := s.backend.From(tableReviews).
		Delete().
		Eq("id", reviewID).
		Eq("reviewer_id", reviewerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &deleted)
	s.metrics.RecordBackendRequest("review_delete", err)
	if err != nil {
		return mapBackendError(err)
	}
	if len(deleted) == 0 {
		return errors.NotFound("Review")
	}
	return nil
}
