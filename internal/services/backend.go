// Package services implements the marketplace use cases on top of the
// hosted backend client. Handlers stay thin; everything between HTTP and
// the backend lives here.
package services

import (
	stderrors "errors"
	"strings"

	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// Table names in the hosted backend.
const (
	tableProfiles = "profiles"
	tableProducts = "products"
	tableReviews  = "reviews"
	tableMessages = "contact_messages"
)

// mapBackendError converts client errors into ServiceErrors with
// user-facing messages. Raw backend messages never reach API clients
// directly.
func mapBackendError(err error) *errors.ServiceError {
	if err == nil {
		return nil
	}
	if serr := errors.GetServiceError(err); serr != nil {
		return serr
	}
	if stderrors.Is(err, supabase.ErrCircuitOpen) {
		return errors.Unavailable("The service is temporarily unavailable. Please try again shortly.", err)
	}
	var apiErr *supabase.Error
	if stderrors.As(err, &apiErr) {
		return errors.FromBackend(apiErr.StatusCode, apiErr.Message)
	}
	return errors.Unavailable("Something went wrong. Please try again.", err)
}

// objectPathFromURL recovers the storage object path from a public URL we
// issued earlier. Foreign URLs return "".
func objectPathFromURL(backend *supabase.Client, bucket, publicURL string) string {
	prefix := backend.Storage().GetPublicURL(bucket, "")
	if !strings.HasPrefix(publicURL, prefix) {
		return ""
	}
	return strings.TrimPrefix(publicURL, prefix)
}
