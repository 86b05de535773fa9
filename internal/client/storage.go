package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
)

// EncryptionHeader marks uploads that were sealed client-side.
const EncryptionHeader = "X-Tessera-Encryption"

// Storage covers buckets, files and access grants (the SDK's os namespace).
type Storage struct {
	c *Client
}

func (s *Storage) CreateAccessGrant(ctx context.Context, req AccessGrantRequest) (*AccessGrant, error) {
	var grant AccessGrant
	err := s.c.do(ctx, request{method: http.MethodPost, route: "/os/access-grants", body: req}, &grant)
	if err != nil {
		return nil, fmt.Errorf("create access grant: %w", err)
	}
	return &grant, nil
}

func (s *Storage) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	var bucket Bucket
	err := s.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/os/buckets",
		body:   CreateBucketRequest{Name: name},
	}, &bucket)
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	if bucket.Name == "" {
		bucket.Name = name
	}
	return &bucket, nil
}

func (s *Storage) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var resp struct {
		Buckets []Bucket `json:"buckets"`
	}
	if err := s.c.do(ctx, request{method: http.MethodGet, route: "/os/buckets"}, &resp); err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return resp.Buckets, nil
}

// UploadFile streams req.Body to the service.
func (s *Storage) UploadFile(ctx context.Context, req UploadRequest) (*FileInfo, error) {
	headers := http.Header{}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers.Set("Content-Type", contentType)
	if req.Encryption != "" {
		headers.Set(EncryptionHeader, req.Encryption)
	}

	resp, cancel, err := s.c.send(ctx, request{
		method:  http.MethodPut,
		route:   fileRoute(req.Bucket, req.Key),
		raw:     req.Body,
		size:    req.Size,
		headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s/%s: %w", req.Bucket, req.Key, err)
	}
	defer cancel()
	defer resp.Body.Close()

	info := FileInfo{Key: req.Key, Size: req.Size, ContentType: contentType, Encrypted: req.Encryption != ""}
	if err := decodeOptional(resp, &info); err != nil {
		return nil, fmt.Errorf("upload %s/%s: %w", req.Bucket, req.Key, err)
	}
	return &info, nil
}

// ListFiles lists files in bucket, optionally under prefix.
func (s *Storage) ListFiles(ctx context.Context, bucket, prefix string) ([]FileInfo, error) {
	var query url.Values
	if prefix != "" {
		query = url.Values{"prefix": {prefix}}
	}
	var list FileList
	err := s.c.do(ctx, request{
		method: http.MethodGet,
		route:  "/os/buckets/" + urlutil.EscapeSegment(bucket) + "/files",
		query:  query,
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("list files in %s: %w", bucket, err)
	}
	return list.Files, nil
}

// DownloadFile opens a streaming download. The caller must close Body.
func (s *Storage) DownloadFile(ctx context.Context, bucket, key string) (*Download, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, sendCancel, err := s.c.send(ctx, request{
		method:  http.MethodGet,
		route:   fileRoute(bucket, key),
		headers: http.Header{"Accept": {"*/*"}},
		stream:  true,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	info := FileInfo{
		Key:         key,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		Encrypted:   resp.Header.Get(EncryptionHeader) != "",
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.ModifiedAt = &lm
	}

	return &Download{
		FileInfo: info,
		Body: &cancelOnClose{ReadCloser: resp.Body, cancel: func() {
			sendCancel()
			cancel()
		}},
	}, nil
}

func (s *Storage) DeleteFile(ctx context.Context, bucket, key string) error {
	if err := s.c.do(ctx, request{method: http.MethodDelete, route: fileRoute(bucket, key)}, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Storage) CopyFile(ctx context.Context, req CopyRequest) (*FileInfo, error) {
	return s.transfer(ctx, "copy", req)
}

func (s *Storage) MoveFile(ctx context.Context, req CopyRequest) (*FileInfo, error) {
	return s.transfer(ctx, "move", req)
}

func (s *Storage) transfer(ctx context.Context, op string, req CopyRequest) (*FileInfo, error) {
	info := FileInfo{Key: req.Destination}
	err := s.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/os/buckets/" + urlutil.EscapeSegment(req.Bucket) + "/files:" + op,
		body:   req,
	}, &info)
	if err != nil {
		return nil, fmt.Errorf("%s %s/%s: %w", op, req.Bucket, req.Source, err)
	}
	return &info, nil
}

func (s *Storage) GetFileMetadata(ctx context.Context, bucket, key string) (*FileMetadata, error) {
	var meta FileMetadata
	err := s.c.do(ctx, request{
		method: http.MethodGet,
		route:  "/os/buckets/" + urlutil.EscapeSegment(bucket) + "/metadata/" + urlutil.EscapeKey(key),
	}, &meta)
	if err != nil {
		return nil, fmt.Errorf("get metadata %s/%s: %w", bucket, key, err)
	}
	return &meta, nil
}

func (s *Storage) GetEncryptedFileMetadata(ctx context.Context, bucket, key string) (EncryptedFileMetadata, error) {
	meta := EncryptedFileMetadata{}
	err := s.c.do(ctx, request{
		method: http.MethodGet,
		route:  "/os/buckets/" + urlutil.EscapeSegment(bucket) + "/encrypted-metadata/" + urlutil.EscapeKey(key),
	}, &meta)
	if err != nil {
		return nil, fmt.Errorf("get encrypted metadata %s/%s: %w", bucket, key, err)
	}
	return meta, nil
}

// GetAccountSize returns storage usage for the signed-in account.
func (s *Storage) GetAccountSize(ctx context.Context) (*AccountSize, error) {
	var size AccountSize
	if err := s.c.do(ctx, request{method: http.MethodGet, route: "/os/account/size"}, &size); err != nil {
		return nil, fmt.Errorf("get account size: %w", err)
	}
	return &size, nil
}

func fileRoute(bucket, key string) string {
	return "/os/buckets/" + urlutil.EscapeSegment(bucket) + "/files/" + urlutil.EscapeKey(key)
}

// ExpiresIn converts a grant lifetime to whole seconds.
func ExpiresIn(d time.Duration) int64 {
	return int64(d / time.Second)
}

// decodeOptional decodes a JSON response body into out when there is one.
func decodeOptional(resp *http.Response, out any) error {
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
