// Package storage defines abstractions for the object-storage backends
// stratus discovers and reads from.
//
// Clients implement a minimal surface area focused on listing and
// conditional streaming downloads. Credential selection happens once at
// construction time - clients never re-inspect which credential variant
// they were built with on a per-call basis.
package storage

import (
	"context"
	"io"
	"time"
)

// Client abstracts one account+container pairing on an object-storage
// backend.
//
// Implementations should:
//   - Support marker-based pagination for List
//   - Pass conditional-read headers through to the backend faithfully
//   - Be safe for concurrent use
type Client interface {
	// List returns a page of objects with the given prefix.
	// Use NextMarker from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Download opens a streaming download for the object at path.
	// Conditions are passed through to the backend; when the backend
	// reports the object unchanged, Download fails with ErrNotModified.
	// The caller owns the returned body and must close it.
	Download(ctx context.Context, path string, cond Conditions) (*Download, error)

	// Endpoint returns the public endpoint URL of the account,
	// without a trailing slash. Object URLs are built by joining
	// Endpoint, Container and the object key.
	Endpoint() string

	// AccountName returns the backend account identity.
	AccountName() string

	// Container returns the container (bucket) this client is bound to.
	Container() string

	// Close releases any resources held by the client.
	Close() error
}

// ClientFactory resolves a client for the account owning the given host.
//
// Implementations look the host up in the configured integrations and
// fail with a credential error when no integration matches.
type ClientFactory interface {
	Client(ctx context.Context, host, container string) (Client, error)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// Marker resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	Marker string

	// MaxResults limits the number of objects returned per page.
	// Zero uses the backend default (typically 1000).
	MaxResults int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page.
	Objects []ObjectSummary

	// NextMarker is used to retrieve the next page.
	// Empty string indicates no more pages.
	NextMarker string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the container.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, with surrounding quotes stripped.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// Conditions restricts a Download to changed content.
//
// Zero values mean unconditional. When both are set, both are passed
// through; which condition the backend evaluates first is backend-defined.
type Conditions struct {
	// IfNoneMatch requests content only when the object's current ETag
	// differs from this value.
	IfNoneMatch string

	// IfModifiedSince requests content only when the object was
	// modified after this instant.
	IfModifiedSince time.Time
}

// Download is an open streaming download.
//
// Ownership of Body transfers to the caller, who must fully drain or
// close it.
type Download struct {
	Body          io.ReadCloser
	ETag          string
	LastModified  time.Time
	ContentLength int64
}

// Backend identifies an object-storage backend.
type Backend string

const (
	// BackendAzureBlob represents Azure Blob Storage.
	BackendAzureBlob Backend = "azure-blob"

	// BackendS3 represents AWS S3 or S3-compatible storage.
	BackendS3 Backend = "s3"
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}
