package client

import (
	"io"
	"time"
)

// Enforcer types.

type NonceResponse struct {
	Nonce string `json:"nonce"`
}

type SignatureLoginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type APIKeyLoginRequest struct {
	APIKey string `json:"apiKey"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type Account struct {
	ID            string     `json:"id" yaml:"id"`
	Address       string     `json:"address" yaml:"address"`
	Email         string     `json:"email,omitempty" yaml:"email,omitempty"`
	Name          string     `json:"name,omitempty" yaml:"name,omitempty"`
	TenantID      string     `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	Roles         []string   `json:"roles,omitempty" yaml:"roles,omitempty"`
	TermsAccepted bool       `json:"termsAccepted" yaml:"termsAccepted"`
	TermsVersion  string     `json:"termsVersion,omitempty" yaml:"termsVersion,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

type AccountExistsResponse struct {
	Address string `json:"address" yaml:"address"`
	Exists  bool   `json:"exists" yaml:"exists"`
}

type APIKey struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Prefix     string     `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Active     bool       `json:"active" yaml:"active"`
	CreatedAt  *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" yaml:"lastUsedAt,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// CreatedAPIKey carries the secret, which the service only returns once.
type CreatedAPIKey struct {
	APIKey `yaml:",inline"`
	Key    string `json:"key" yaml:"key"`
}

type Terms struct {
	Version    string     `json:"version" yaml:"version"`
	Content    string     `json:"content" yaml:"content"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty" yaml:"acceptedAt,omitempty"`
}

type AcceptTermsRequest struct {
	Version string `json:"version,omitempty"`
}

type RegisterAccountRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Admin types.

type Tenant struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Slug        string     `json:"slug,omitempty" yaml:"slug,omitempty"`
	Domain      string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

type TenantList struct {
	Tenants []Tenant `json:"tenants" yaml:"tenants"`
	Total   int      `json:"total" yaml:"total"`
}

type CreateTenantRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateTenantRequest only sends fields that are set.
type UpdateTenantRequest struct {
	Name        *string `json:"name,omitempty"`
	Domain      *string `json:"domain,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the update changes nothing.
func (r UpdateTenantRequest) Empty() bool {
	return r.Name == nil && r.Domain == nil && r.Description == nil
}

type ListOptions struct {
	Offset int
	Limit  int
}

type Role struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

type Group struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Members     []string `json:"members,omitempty" yaml:"members,omitempty"`
}

// Storage types.

type AccessGrantRequest struct {
	Bucket      string   `json:"bucket"`
	Paths       []string `json:"paths,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	ExpiresIn   int64    `json:"expiresIn,omitempty"` // seconds
}

type AccessGrant struct {
	AccessGrant string     `json:"accessGrant" yaml:"accessGrant"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

type Bucket struct {
	Name      string     `json:"name" yaml:"name"`
	CreatedAt *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

type CreateBucketRequest struct {
	Name string `json:"name"`
}

type FileInfo struct {
	Key         string     `json:"key" yaml:"key"`
	Size        int64      `json:"size" yaml:"size"`
	ContentType string     `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Encrypted   bool       `json:"encrypted" yaml:"encrypted"`
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty" yaml:"modifiedAt,omitempty"`
}

type FileList struct {
	Files []FileInfo `json:"files" yaml:"files"`
}

// UploadRequest streams Body to Bucket/Key.
type UploadRequest struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64 // -1 if unknown
	Encryption  string
	Body        io.Reader
}

// Download is a file body being streamed from the service.
// The caller must close Body.
type Download struct {
	FileInfo
	Body io.ReadCloser
}

type CopyRequest struct {
	Bucket            string `json:"-"`
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	DestinationBucket string `json:"destinationBucket,omitempty"`
}

type FileMetadata struct {
	Bucket      string            `json:"bucket" yaml:"bucket"`
	Key         string            `json:"key" yaml:"key"`
	Size        int64             `json:"size" yaml:"size"`
	ContentType string            `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	ETag        string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	Encrypted   bool              `json:"encrypted" yaml:"encrypted"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	ModifiedAt  *time.Time        `json:"modifiedAt,omitempty" yaml:"modifiedAt,omitempty"`
}

// EncryptedFileMetadata is the storage layer's encryption envelope. Its
// shape belongs to the service, so it is kept as an open document.
type EncryptedFileMetadata map[string]any

type AccountSize struct {
	Bytes   int64 `json:"bytes" yaml:"bytes"`
	Files   int64 `json:"files" yaml:"files"`
	Buckets int64 `json:"buckets" yaml:"buckets"`
}
