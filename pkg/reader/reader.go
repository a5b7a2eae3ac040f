// Package reader fetches single objects and whole object trees from
// object-storage backends by URL.
//
// Reads are conditionally cacheable (ETag / modification time) and
// cancellable through the context. Downloads are fully buffered before a
// result is returned so a dropped connection never hands truncated
// content to a caller, but results still expose a byte stream interface
// for large-object efficiency elsewhere in the system.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathomlabs/stratus/pkg/objecturl"
	"github.com/fathomlabs/stratus/pkg/storage"
)

// ErrUnsupported indicates a capability the reader intentionally lacks.
var ErrUnsupported = errors.New("search is not supported by the object storage reader")

// ReadOptions configures a conditional single-object read.
//
// When both conditions are set, both are passed through to the backend;
// which one the backend evaluates first is backend-defined.
type ReadOptions struct {
	// ETag requests content only when the object's current ETag
	// differs. A match yields storage.ErrNotModified.
	ETag string

	// LastModifiedAfter requests content only when the object was
	// modified after this instant.
	LastModifiedAfter time.Time
}

// ReadResult is a completed single-object read. Ownership of Body
// transfers to the caller, who must close it.
type ReadResult struct {
	Body         io.ReadCloser
	ETag         string
	LastModified time.Time
}

// TreeOptions configures a recursive prefix read.
type TreeOptions struct {
	// Concurrency bounds the number of downloads in flight.
	// Default: 4
	Concurrency int
}

// TreeEntry is one object under the requested prefix.
type TreeEntry struct {
	// RelativePath is the object key relative to the requested prefix,
	// forward-slash separated regardless of platform.
	RelativePath string

	// Body is the buffered object content.
	Body io.ReadCloser

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// DefaultTreeConcurrency bounds tree-read downloads when unset.
const DefaultTreeConcurrency = 4

// Reader reads objects and trees from any account resolvable through
// its client factory. Backend clients are cached per account+container;
// caching is an optimization only, each call would be correct without it.
type Reader struct {
	factory storage.ClientFactory
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]storage.Client
}

// New creates a Reader resolving backend clients through factory.
func New(factory storage.ClientFactory, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		factory: factory,
		logger:  logger,
		clients: make(map[string]storage.Client),
	}
}

// ReadURL fetches a single object.
//
// Outcomes callers branch on: storage.ErrNotModified when a supplied
// condition matched, context.Canceled when ctx fired mid-download.
// Other failures are wrapped with the originating cause attached.
func (r *Reader) ReadURL(ctx context.Context, rawURL string, opts ReadOptions) (*ReadResult, error) {
	u, err := objecturl.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := r.client(ctx, u)
	if err != nil {
		return nil, err
	}

	dl, err := client.Download(ctx, u.Path, storage.Conditions{
		IfNoneMatch:     opts.ETag,
		IfModifiedSince: opts.LastModifiedAfter,
	})
	if err != nil {
		if storage.IsNotModified(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	data, err := bufferBody(ctx, dl.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	return &ReadResult{
		Body:         io.NopCloser(bytes.NewReader(data)),
		ETag:         dl.ETag,
		LastModified: dl.LastModified,
	}, nil
}

// ReadTree fetches every object whose key starts with the URL's path.
//
// Listing is fully drained before any download starts; downloads are
// pipelined with bounded concurrency. A single ctx cancellation aborts
// every in-flight download. Any failure aborts the whole tree read - no
// partial tree is ever returned. Entries preserve listing order.
func (r *Reader) ReadTree(ctx context.Context, rawURL string, opts TreeOptions) ([]TreeEntry, error) {
	u, err := objecturl.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := r.client(ctx, u)
	if err != nil {
		return nil, err
	}

	prefix := u.Path
	objects, err := drainListing(ctx, client, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read tree %s: %w", rawURL, err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultTreeConcurrency
	}

	// Shared cancel: the first failure (or the caller's ctx) aborts
	// every download still in flight.
	treeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	entries := make([]TreeEntry, len(objects))

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, obj := range objects {
		select {
		case <-treeCtx.Done():
		case sem <- struct{}{}:
		}
		if treeCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, obj storage.ObjectSummary) {
			defer wg.Done()
			defer func() { <-sem }()

			dl, err := client.Download(treeCtx, obj.Key, storage.Conditions{})
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				cancel()
				return
			}
			data, err := bufferBody(treeCtx, dl.Body)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				cancel()
				return
			}

			lastModified := dl.LastModified
			if lastModified.IsZero() {
				lastModified = obj.LastModified
			}
			entries[i] = TreeEntry{
				RelativePath: relativePath(prefix, obj.Key),
				Body:         io.NopCloser(bytes.NewReader(data)),
				LastModified: lastModified,
			}
		}(i, obj)
	}

	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if firstErr != nil {
		return nil, fmt.Errorf("read tree %s: %w", rawURL, firstErr)
	}
	return entries, nil
}

// Search is intentionally unsupported for object-storage URLs.
func (r *Reader) Search(context.Context, string) error {
	return ErrUnsupported
}

// Close closes every cached backend client.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for key, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.clients, key)
	}
	return firstErr
}

// client resolves a backend client for the URL's account and container,
// caching per account+container pairing. Lazy init-once is the only
// mutation of reader state.
func (r *Reader) client(ctx context.Context, u *objecturl.ObjectURL) (storage.Client, error) {
	key := u.Host + "/" + u.Container

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.factory.Client(ctx, u.Host, u.Container)
	if err != nil {
		return nil, fmt.Errorf("resolve client for %s: %w", u.Host, err)
	}
	r.clients[key] = client
	r.logger.Debug("Opened backend connection",
		zap.String("host", u.Host),
		zap.String("container", u.Container))
	return client, nil
}

// drainListing collects every object under prefix across all pages.
func drainListing(ctx context.Context, client storage.Client, prefix string) ([]storage.ObjectSummary, error) {
	var objects []storage.ObjectSummary
	var marker string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := client.List(ctx, storage.ListOptions{Prefix: prefix, Marker: marker})
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)
		if !page.IsTruncated || page.NextMarker == "" {
			return objects, nil
		}
		marker = page.NextMarker
	}
}

// bufferBody drains and closes the body, failing on any mid-stream error
// so truncated content never escapes.
func bufferBody(ctx context.Context, body io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(body)
	closeErr := body.Close()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return data, nil
}

// relativePath strips the queried prefix from an absolute key. Keys are
// forward-slash separated natively, so no platform conversion happens.
// A key equal to the prefix (a single-object tree) keeps its last
// segment, so the entry always carries a usable file name.
func relativePath(prefix, key string) string {
	rel := key
	if prefix != "" && len(key) >= len(prefix) && key[:len(prefix)] == prefix {
		rel = key[len(prefix):]
	}
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	if rel == "" {
		if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
			return key[idx+1:]
		}
		return key
	}
	return rel
}
