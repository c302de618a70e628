package services

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/handcrafted-haven/marketplace/internal/cache"
	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// ProductPage is the number of products returned per page.
const ProductPage = 12

// maxImageBytes caps product image uploads at 5 MiB.
const maxImageBytes = 5 << 20

// imageExtensions maps the accepted upload content types to file
// extensions. Anything else is rejected.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// cacheKeyPrefix namespaces the product listing cache.
const cacheKeyPrefix = "products:"

// ProductService manages product listings.
type ProductService struct {
	backend *supabase.Client
	cache   *cache.Cache
	bucket  string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewProductService creates a product service. Images are stored in the
// given bucket under the seller's id.
func NewProductService(backend *supabase.Client, c *cache.Cache, bucket string, logger *logging.Logger, m *metrics.Metrics) *ProductService {
	return &ProductService{backend: backend, cache: c, bucket: bucket, logger: logger, metrics: m}
}

// ListParams filter and page the public catalog. Nil price bounds are
// unbounded.
type ListParams struct {
	Category string
	SellerID string
	Search   string
	MinPrice *float64
	MaxPrice *float64
	Sort     string
	Order    string
	Page     int
}

// ProductList is one page of the catalog.
type ProductList struct {
	Items []domain.Product `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
}

// List returns a page of products. Public listings are served from cache
// when possible.
func (s *ProductService) List(ctx context.Context, params ListParams) (*ProductList, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Category != "" && !domain.ValidCategory(params.Category) {
		return nil, errors.Validation("Unknown category.").WithDetails("categories", domain.Categories)
	}
	sort := params.Sort
	if sort == "" {
		sort = "created_at"
	}
	if !domain.ValidProductSort(sort) {
		return nil, errors.Validation("Cannot sort by that column.")
	}
	if params.MinPrice != nil && *params.MinPrice < 0 {
		return nil, errors.Validation("Minimum price cannot be negative.")
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return nil, errors.Validation("Minimum price cannot exceed maximum price.")
	}
	direction := supabase.OrderDesc
	if strings.EqualFold(params.Order, "asc") {
		direction = supabase.OrderAsc
	}

	key := fmt.Sprintf("%s%s:%s:%s:%s:%s:%s:%s:%d", cacheKeyPrefix,
		params.Category, params.SellerID, params.Search,
		priceKey(params.MinPrice), priceKey(params.MaxPrice),
		sort, direction, params.Page)
	var cached ProductList
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	q := s.backend.From(tableProducts).Select("*")
	if params.Category != "" {
		q = q.Eq("category", params.Category)
	}
	if params.SellerID != "" {
		q = q.Eq("seller_id", params.SellerID)
	}
	if search := sanitizeSearch(params.Search); search != "" {
		pattern := "%" + search + "%"
		q = q.Or(fmt.Sprintf("name.ilike.%s,description.ilike.%s", pattern, pattern))
	}
	if params.MinPrice != nil {
		q = q.Gte("price", *params.MinPrice)
	}
	if params.MaxPrice != nil {
		q = q.Lte("price", *params.MaxPrice)
	}

	list := &ProductList{Page: params.Page}
	res, err := q.
		Order(sort, direction).
		Limit(ProductPage).
		Offset((params.Page-1)*ProductPage).
		Count("exact").
		ExecuteInto(ctx, &list.Items)
	s.metrics.RecordBackendRequest("products_list", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	list.Total = res.Count

	s.cache.Set(ctx, key, list)
	return list, nil
}

func priceKey(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// sanitizeSearch strips the characters PostgREST treats as filter syntax.
func sanitizeSearch(search string) string {
	search = strings.TrimSpace(search)
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '.':
			return -1
		}
		return r
	}, search)
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	_, err := s.backend.From(tableProducts).
		Select("*").
		Eq("id", productID).
		Single().
		ExecuteInto(ctx, &product)
	s.metrics.RecordBackendRequest("product_get", err)
	if err != nil {
		return nil, notFoundAs(err, "Product")
	}
	return &product, nil
}

// Featured returns the curated products shown on the landing page.
func (s *ProductService) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 || limit > ProductPage {
		limit = 4
	}

	key := fmt.Sprintf("%sfeatured:%d", cacheKeyPrefix, limit)
	var cached []domain.Product
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	var products []domain.Product
	_, err := s.backend.From(tableProducts).
		Select("*").
		Eq("featured", true).
		Order("created_at", supabase.OrderDesc).
		Limit(limit).
		ExecuteInto(ctx, &products)
	s.metrics.RecordBackendRequest("products_featured", err)
	if err != nil {
		return nil, mapBackendError(err)
	}

	s.cache.Set(ctx, key, products)
	return products, nil
}

// Create lists a new product for the caller. Row-level security enforces
// that seller_id matches the token's user.
func (s *ProductService) Create(ctx context.Context, accessToken, sellerID string, in domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created []domain.Product
	_, err := s.backend.From(tableProducts).
		Insert(map[string]interface{}{
			"seller_id":   sellerID,
			"name":        strings.TrimSpace(in.Name),
			"description": in.Description,
			"category":    in.Category,
			"price":       in.Price,
			"stock":       in.Stock,
		}).
		WithToken(accessToken).
		ExecuteInto(ctx, &created)
	s.metrics.RecordBackendRequest("product_create", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(created) == 0 {
		return nil, errors.Internal("Product creation returned no record.", nil)
	}

	s.invalidateListings(ctx)
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": created[0].ID,
		"seller_id":  sellerID,
	}).Info("product created")
	return &created[0], nil
}

// Update edits a product. Only the owning seller's token can match rows.
func (s *ProductService) Update(ctx context.Context, accessToken, sellerID, productID string, in domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated []domain.Product
	_, err := s.backend.From(tableProducts).
		Update(map[string]interface{}{
			"name":        strings.TrimSpace(in.Name),
			"description": in.Description,
			"category":    in.Category,
			"price":       in.Price,
			"stock":       in.Stock,
		}).
		Eq("id", productID).
		Eq("seller_id", sellerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("product_update", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Product")
	}

	s.invalidateListings(ctx)
	return &updated[0], nil
}

// Delete removes a product and its image.
func (s *ProductService) Delete(ctx context.Context, accessToken, sellerID, productID string) error {
	var deleted []domain.Product
	_, err := s.backend.From(tableProducts).
		Delete().
		Eq("id", productID).
		Eq("seller_id", sellerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &deleted)
	s.metrics.RecordBackendRequest("product_delete", err)
	if err != nil {
		return mapBackendError(err)
	}
	if len(deleted) == 0 {
		return errors.NotFound("Product")
	}

	if img := deleted[0].ImageURL; img != "" {
		if objectPath := s.objectPathFromURL(img); objectPath != "" {
			if err := s.backend.Storage().Delete(ctx, s.bucket, []string{objectPath}); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("deleting product image failed")
			}
		}
	}

	s.invalidateListings(ctx)
	return nil
}

// UploadImage stores a product image and records its public URL on the
// product.
func (s *ProductService) UploadImage(ctx context.Context, accessToken, sellerID, productID, contentType string, data []byte) (*domain.Product, error) {
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

	// Ownership check before touching storage.
	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != sellerID {
		return nil, errors.Forbidden("You can only upload images for your own products.")
	}

	objectPath := path.Join(sellerID, productID+"-"+uuid.NewString()+ext)
	err = s.backend.Storage().UploadWithToken(ctx, s.bucket, objectPath, data, supabase.UploadOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	}, accessToken)
	s.metrics.RecordBackendRequest("image_upload", err)
	if err != nil {
		return nil, mapBackendError(err)
	}

	publicURL := s.backend.Storage().GetPublicURL(s.bucket, objectPath)
	var updated []domain.Product
	_, err = s.backend.From(tableProducts).
		Update(map[string]interface{}{"image_url": publicURL}).
		Eq("id", productID).
		Eq("seller_id", sellerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("product_update", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Product")
	}

	if old := product.ImageURL; old != "" && old != publicURL {
		if oldPath := s.objectPathFromURL(old); oldPath != "" {
			if err := s.backend.Storage().Delete(ctx, s.bucket, []string{oldPath}); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("deleting replaced product image failed")
			}
		}
	}

	s.invalidateListings(ctx)
	return &updated[0], nil
}

// SetFeatured curates a product onto the landing page. Admin only; runs
// with the service key.
func (s *ProductService) SetFeatured(ctx context.Context, productID string, featured bool) (*domain.Product, error) {
	var updated []domain.Product
	_, err := s.backend.From(tableProducts).
		Update(map[string]interface{}{"featured": featured}).
		Eq("id", productID).
		WithServiceKey().
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("product_feature", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Product")
	}

	s.invalidateListings(ctx)
	return &updated[0], nil
}

// RemoveImage clears a product's image and deletes the stored object.
func (s *ProductService) RemoveImage(ctx context.Context, accessToken, sellerID, productID string) (*domain.Product, error) {
	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != sellerID {
		return nil, errors.Forbidden("You can only manage images for your own products.")
	}
	if product.ImageURL == "" {
		return product, nil
	}

	var updated []domain.Product
	_, err = s.backend.From(tableProducts).
		Update(map[string]interface{}{"image_url": ""}).
		Eq("id", productID).
		Eq("seller_id", sellerID).
		WithToken(accessToken).
		ExecuteInto(ctx, &updated)
	s.metrics.RecordBackendRequest("product_update", err)
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(updated) == 0 {
		return nil, errors.NotFound("Product")
	}

	if objectPath := s.objectPathFromURL(product.ImageURL); objectPath != "" {
		if err := s.backend.Storage().Delete(ctx, s.bucket, []string{objectPath}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("deleting product image failed")
		}
	}

	s.invalidateListings(ctx)
	return &updated[0], nil
}

func (s *ProductService) invalidateListings(ctx context.Context) {
	s.cache.Invalidate(ctx, cacheKeyPrefix)
}

func (s *ProductService) objectPathFromURL(publicURL string) string {
	return objectPathFromURL(s.backend, s.bucket, publicURL)
}
