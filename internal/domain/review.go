package domain

import (
	"time"

	"github.com/handcrafted-haven/marketplace/internal/errors"
)

// Review is a buyer's rating of a product. One review per buyer per
// product; submitting again replaces the earlier one.
type Review struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewInput is a submitted review.
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Validate checks a review submission.
func (in *ReviewInput) Validate() error {
	if in.Rating < 1 || in.Rating > 5 {
		return errors.Validation("Rating must be between 1 and 5.")
	}
	if len(in.Comment) > 2000 {
		return errors.Validation("Comment must be 2000 characters or fewer.")
	}
	return nil
}

// ReviewSummary aggregates a product's reviews.
type ReviewSummary struct {
	ProductID     string  `json:"product_id"`
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}

// Summarize computes the count and mean rating of a product's reviews.
func Summarize(productID string, reviews []Review) ReviewSummary {
	s := ReviewSummary{ProductID: productID, ReviewCount: len(reviews)}
	if len(reviews) == 0 {
		return s
	}
	var total int
	for _, r := range reviews {
		total += r.Rating
	}
	s.AverageRating = float64(total) / float64(len(reviews))
	return s
}
