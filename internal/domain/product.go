package domain

import (
	"math"
	"strings"
	"time"

	"github.com/handcrafted-haven/marketplace/internal/errors"
)

// Categories a product can be listed under.
var Categories = []string{
	"ceramics",
	"woodwork",
	"textiles",
	"jewelry",
	"glass",
	"leather",
	"paper",
	"other",
}

// Product is a handcrafted item listed for sale.
type Product struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url,omitempty"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductInput is what a seller submits when creating or updating a listing.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

// Validate checks a product submission and normalizes the price to two
// decimals.
func (in *ProductInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return errors.Validation("Product name is required.")
	}
	if len(name) > 120 {
		return errors.Validation("Product name must be 120 characters or fewer.")
	}
	if len(in.Description) > 5000 {
		return errors.Validation("Description must be 5000 characters or fewer.")
	}
	if !ValidCategory(in.Category) {
		return errors.Validation("Unknown category.").WithDetails("categories", Categories)
	}
	if in.Price < 0 {
		return errors.Validation("Price cannot be negative.")
	}
	if in.Stock < 0 {
		return errors.Validation("Stock cannot be negative.")
	}
	in.Price = math.Round(in.Price*100) / 100
	return nil
}

// ValidCategory reports whether the category is one we list.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Columns products can be sorted by. Anything else is rejected so arbitrary
// column names never reach the query.
var productSortColumns = map[string]bool{
	"created_at": true,
	"price":      true,
	"name":       true,
}

// ValidProductSort reports whether the sort column is allowed.
func ValidProductSort(column string) bool {
	return productSortColumns[column]
}
