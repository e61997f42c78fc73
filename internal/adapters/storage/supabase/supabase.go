// Package supabase stores objects in a Supabase Storage bucket.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"teamart/internal/ports"
)

// Client implements ports.StorageProvider for one bucket. Object keys are
// used in URLs as given, so they must already be URL safe.
type Client struct {
	storageURL string
	key        string
	bucket     string
}

var _ ports.StorageProvider = (*Client)(nil)

// NewClient targets the project at baseURL, e.g. https://xyz.supabase.co.
func NewClient(baseURL, key, bucket string) *Client {
	return &Client{
		storageURL: strings.TrimRight(baseURL, "/") + "/storage/v1",
		key:        key,
		bucket:     bucket,
	}
}

func (c *Client) Provider() string { return "supabase" }

// api returns a fresh storage client. Upload options are applied to the
// client's shared headers, so clients are not reused across calls.
func (c *Client) api() *storage.Client {
	return storage.NewClient(c.storageURL, c.key, map[string]string{"apikey": c.key})
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}
	if err := ctx.Err(); err != nil {
		return ports.PutObjectOutput{}, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upsert := in.Upsert

	resp, err := call(ctx, func() (storage.FileUploadResponse, error) {
		return c.api().UploadFile(c.bucket, in.ObjectKey, in.Reader, storage.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
	})
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("supabase upload failed: %w", err)
	}
	// A rejected upload can decode into an empty response.
	if resp.Key == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("supabase upload failed: no object key in response")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, "", 0, err
	}

	b, err := call(ctx, func() ([]byte, error) {
		return c.api().DownloadFile(c.bucket, objectKey)
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("supabase download failed: %w", err)
	}
	if ae, ok := asAPIError(b); ok {
		return nil, "", 0, fmt.Errorf("supabase download failed: %s", ae)
	}

	contentType = mime.TypeByExtension(path.Ext(objectKey))
	if contentType == "" {
		contentType = http.DetectContentType(b)
	}
	return io.NopCloser(bytes.NewReader(b)), contentType, int64(len(b)), nil
}

// PublicURL returns the public object address. The bucket must be public.
func (c *Client) PublicURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object_key is required")
	}
	return c.api().GetPublicUrl(c.bucket, objectKey).SignedURL, nil
}

// call runs fn, which cannot observe ctx, and stops waiting once ctx ends.
// fn keeps running to completion in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (e apiError) String() string {
	msg := e.Message
	if msg == "" {
		msg = e.Error
	}
	return fmt.Sprintf("status %s: %s", e.StatusCode, msg)
}

// asAPIError reports whether a download body is a storage error document
// rather than object bytes.
func asAPIError(b []byte) (apiError, bool) {
	var ae apiError
	if len(b) == 0 || b[0] != '{' {
		return ae, false
	}
	if err := json.Unmarshal(b, &ae); err != nil {
		return ae, false
	}
	return ae, ae.StatusCode != "" && (ae.Error != "" || ae.Message != "")
}
