package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// StorageClient talks to the backend's object storage API.
type StorageClient struct {
	client *Client
}

// CreateBucket creates a bucket. Requires the service key. Creating a bucket
// that already exists returns a conflict error from the backend.
func (s *StorageClient) CreateBucket(ctx context.Context, name string, public bool) error {
	body, err := json.Marshal(map[string]interface{}{
		"id":     name,
		"name":   name,
		"public": public,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.requestWithServiceKey(ctx, "POST", s.client.storageURL+"/bucket", body, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.Body, resp.StatusCode)
	}
	return nil
}

// GetBucket fetches bucket metadata.
func (s *StorageClient) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	resp, err := s.client.requestWithServiceKey(ctx, "GET", s.client.storageURL+"/bucket/"+name, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.Body, resp.StatusCode)
	}

	var bucket Bucket
	if err := json.Unmarshal(resp.Body, &bucket); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &bucket, nil
}

// Upload stores an object with the service key.
func (s *StorageClient) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error {
	resp, err := s.client.requestWithServiceKey(ctx, "POST", s.objectURL(bucket, path), data, uploadHeaders(opts))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.Body, resp.StatusCode)
	}
	return nil
}

// UploadWithToken stores an object as the user behind the access token so
// storage policies apply to them.
func (s *StorageClient) UploadWithToken(ctx context.Context, bucket, path string, data []byte, opts UploadOptions, accessToken string) error {
	resp, err := s.client.requestWithToken(ctx, "POST", s.objectURL(bucket, path), data, uploadHeaders(opts), accessToken)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.Body, resp.StatusCode)
	}
	return nil
}

func uploadHeaders(opts UploadOptions) map[string]string {
	headers := make(map[string]string)
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	} else {
		headers["Content-Type"] = "application/octet-stream"
	}
	if opts.CacheControl != "" {
		headers["Cache-Control"] = opts.CacheControl
	}
	if opts.Upsert {
		headers["x-upsert"] = "true"
	}
	return headers
}

// Download fetches an object's bytes.
func (s *StorageClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	resp, err := s.client.requestWithServiceKey(ctx, "GET", s.objectURL(bucket, path), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.Body, resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete removes objects by path.
func (s *StorageClient) Delete(ctx context.Context, bucket string, paths []string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.requestWithServiceKey(ctx, "DELETE", s.client.storageURL+"/object/"+bucket, body, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.Body, resp.StatusCode)
	}
	return nil
}

// List lists objects under a prefix.
func (s *StorageClient) List(ctx context.Context, bucket, prefix string, limit int) ([]FileObject, error) {
	if limit <= 0 {
		limit = 100
	}
	body, err := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.requestWithServiceKey(ctx, "POST", s.client.storageURL+"/object/list/"+bucket, body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.Body, resp.StatusCode)
	}

	var objects []FileObject
	if err := json.Unmarshal(resp.Body, &objects); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return objects, nil
}

// GetPublicURL returns the unauthenticated URL of an object in a public
// bucket. No request is made; the URL is derived from the project URL.
func (s *StorageClient) GetPublicURL(bucket, path string) string {
	return s.client.storageURL + "/object/public/" + bucket + "/" + escapePath(path)
}

// CreateSignedURL returns a time-limited URL for an object in a private
// bucket.
func (s *StorageClient) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error) {
	body, err := json.Marshal(map[string]int{"expiresIn": expiresIn})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.requestWithServiceKey(ctx, "POST", s.client.storageURL+"/object/sign/"+bucket+"/"+escapePath(path), body, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", parseError(resp.Body, resp.StatusCode)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(resp.Body, &signed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return s.client.storageURL + signed.SignedURL, nil
}

func (s *StorageClient) objectURL(bucket, path string) string {
	return s.client.storageURL + "/object/" + bucket + "/" + escapePath(path)
}

// escapePath escapes each path segment but keeps the separators.
func escapePath(path string) string {
	return (&url.URL{Path: path}).EscapedPath()
}
