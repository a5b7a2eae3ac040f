package azure

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/fathomlabs/stratus/pkg/storage"
)

// Client implements storage.Client for Azure Blob Storage.
type Client struct {
	client     *azblob.Client
	endpoint   string
	account    string
	container  string
	maxResults int
}

var _ storage.Client = (*Client)(nil)

// New creates a new Azure Blob Storage client with the given configuration.
//
// The credential variant is selected here, once: shared key, SAS token,
// Azure AD default chain, or anonymous. Subsequent calls never inspect
// which variant was chosen.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint()
	serviceURL := endpoint + "/"

	var client *azblob.Client
	var err error
	switch {
	case cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		}
	case cfg.SASToken != "":
		sasURL := serviceURL + "?" + strings.TrimPrefix(cfg.SASToken, "?")
		client, err = azblob.NewClientWithNoCredential(sasURL, nil)
	case cfg.UseDefaultCredential:
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err == nil {
			client, err = azblob.NewClient(serviceURL, cred, nil)
		}
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return nil, &storage.StorageError{
			Op:        "New",
			Backend:   storage.BackendAzureBlob,
			Container: cfg.Container,
			Err:       err,
		}
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxAllowedResults {
		maxResults = MaxAllowedResults
	}

	return &Client{
		client:     client,
		endpoint:   endpoint,
		account:    cfg.AccountName,
		container:  cfg.Container,
		maxResults: maxResults,
	}, nil
}

// List returns one page of a flat blob listing.
func (c *Client) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	maxResults := int32(c.maxResults)
	if opts.MaxResults > 0 && opts.MaxResults < c.maxResults {
		maxResults = int32(opts.MaxResults)
	}

	pagerOpts := &azblob.ListBlobsFlatOptions{
		MaxResults: &maxResults,
	}
	if opts.Prefix != "" {
		pagerOpts.Prefix = &opts.Prefix
	}
	if opts.Marker != "" {
		pagerOpts.Marker = &opts.Marker
	}

	pager := c.client.NewListBlobsFlatPager(c.container, pagerOpts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, c.wrapError("List", "", err)
	}

	var objects []storage.ObjectSummary
	if resp.Segment != nil {
		objects = make([]storage.ObjectSummary, 0, len(resp.Segment.BlobItems))
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			summary := storage.ObjectSummary{Key: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					summary.Size = *props.ContentLength
				}
				if props.ETag != nil {
					summary.ETag = cleanETag(string(*props.ETag))
				}
				if props.LastModified != nil {
					summary.LastModified = *props.LastModified
				}
			}
			objects = append(objects, summary)
		}
	}

	result := &storage.ListResult{Objects: objects}
	if resp.NextMarker != nil && *resp.NextMarker != "" {
		result.NextMarker = *resp.NextMarker
		result.IsTruncated = true
	}
	return result, nil
}

// Download opens a streaming download, passing conditional-read headers
// through to the service. A 304 response maps to storage.ErrNotModified.
func (c *Client) Download(ctx context.Context, path string, cond Conditions) (*storage.Download, error) {
	opts := &azblob.DownloadStreamOptions{}
	if mac := modifiedConditions(cond); mac != nil {
		opts.AccessConditions = &blob.AccessConditions{ModifiedAccessConditions: mac}
	}

	resp, err := c.client.DownloadStream(ctx, c.container, path, opts)
	if err != nil {
		return nil, c.wrapError("Download", path, err)
	}

	dl := &storage.Download{Body: resp.Body}
	if resp.ETag != nil {
		dl.ETag = cleanETag(string(*resp.ETag))
	}
	if resp.LastModified != nil {
		dl.LastModified = *resp.LastModified
	}
	if resp.ContentLength != nil {
		dl.ContentLength = *resp.ContentLength
	}
	return dl, nil
}

// Conditions is an alias kept so call sites read naturally.
type Conditions = storage.Conditions

// modifiedConditions converts storage conditions to service access
// conditions. Returns nil when the download is unconditional.
func modifiedConditions(cond Conditions) *blob.ModifiedAccessConditions {
	if cond.IfNoneMatch == "" && cond.IfModifiedSince.IsZero() {
		return nil
	}
	mac := &blob.ModifiedAccessConditions{}
	if cond.IfNoneMatch != "" {
		etag := azcore.ETag(quoteETag(cond.IfNoneMatch))
		mac.IfNoneMatch = &etag
	}
	if !cond.IfModifiedSince.IsZero() {
		since := cond.IfModifiedSince
		mac.IfModifiedSince = &since
	}
	return mac
}

// Endpoint returns the public blob endpoint for the account.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// AccountName returns the storage account name.
func (c *Client) AccountName() string {
	return c.account
}

// Container returns the container name this client is bound to.
func (c *Client) Container() string {
	return c.container
}

// Close releases any resources held by the client.
// The azblob client doesn't require explicit cleanup, but this satisfies
// the interface.
func (c *Client) Close() error {
	return nil
}

// wrapError converts Azure service errors to storage errors with
// appropriate sentinel errors.
func (c *Client) wrapError(op, path string, err error) error {
	wrapped := &storage.StorageError{
		Op:        op,
		Backend:   storage.BackendAzureBlob,
		Container: c.container,
		Path:      path,
		Err:       err,
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotModified:
			wrapped.Err = storage.ErrNotModified
			return wrapped
		case http.StatusUnauthorized:
			wrapped.Err = storage.ErrInvalidCredentials
			return wrapped
		case http.StatusForbidden:
			wrapped.Err = storage.ErrAccessDenied
			return wrapped
		case http.StatusTooManyRequests:
			wrapped.Err = storage.ErrThrottled
			return wrapped
		}
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		wrapped.Err = storage.ErrNotFound
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		wrapped.Err = storage.ErrContainerNotFound
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.InvalidAuthenticationInfo):
		wrapped.Err = storage.ErrInvalidCredentials
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		wrapped.Err = storage.ErrAccessDenied
	case bloberror.HasCode(err, bloberror.ServerBusy):
		wrapped.Err = storage.ErrThrottled
	case bloberror.HasCode(err, bloberror.InternalError, bloberror.OperationTimedOut):
		wrapped.Err = storage.ErrUnavailable
	case respErr != nil && respErr.StatusCode == http.StatusNotFound:
		wrapped.Err = storage.ErrNotFound
	case respErr != nil && respErr.StatusCode == http.StatusServiceUnavailable:
		wrapped.Err = storage.ErrUnavailable
	}

	return wrapped
}

// cleanETag removes surrounding quotes from an ETag value.
// The service returns ETags quoted, e.g., "0x8DC51733330B1F1".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// quoteETag restores the quoting the service expects in If-None-Match.
func quoteETag(etag string) string {
	if etag == "*" || strings.HasPrefix(etag, "\"") {
		return etag
	}
	return "\"" + etag + "\""
}
