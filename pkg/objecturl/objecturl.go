// Package objecturl parses and builds object-storage URLs.
//
// It is the single implementation shared by location construction
// (discovery) and location parsing (reader), which guarantees that
// Join and Parse round-trip exactly.
package objecturl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URL parsing errors.
var (
	// ErrInvalidURL indicates the URL could not be parsed or does not
	// carry both a container and an object path.
	ErrInvalidURL = errors.New("invalid object URL")
)

// ObjectURL represents a parsed object-storage URL.
//
// Example URLs:
//   - https://account.blob.core.windows.net/container/dir/file.yaml
//   - https://s3.us-east-1.amazonaws.com/bucket/prefix/
type ObjectURL struct {
	// Scheme is the URL scheme (http or https).
	Scheme string

	// Host is the endpoint authority, including any port.
	Host string

	// Container is the container (bucket) name, the first path segment.
	Container string

	// Path is the object key or prefix relative to the container,
	// forward-slash separated.
	Path string
}

// String returns the URL in canonical form.
func (u *ObjectURL) String() string {
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, u.Container, u.Path)
}

// Endpoint returns the account endpoint portion of the URL, without a
// trailing slash.
func (u *ObjectURL) Endpoint() string {
	return u.Scheme + "://" + u.Host
}

// Parse splits an object URL into its endpoint, container and object
// path components.
//
// The URL's path is split on '/', empty segments are dropped, the first
// remaining segment is the container and the rest (rejoined with '/')
// is the object path. Fails with ErrInvalidURL when fewer than two
// segments remain.
func Parse(rawURL string) (*ObjectURL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, rawURL)
	}

	segments := make([]string, 0, 4)
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) < 2 {
		return nil, fmt.Errorf("%w: expected /container/path in %s", ErrInvalidURL, rawURL)
	}

	return &ObjectURL{
		Scheme:    parsed.Scheme,
		Host:      parsed.Host,
		Container: segments[0],
		Path:      strings.Join(segments[1:], "/"),
	}, nil
}

// Join builds a fully qualified object URL from an endpoint, a container
// and an object key, using exactly one '/' separator between each part.
// The result round-trips through Parse.
func Join(endpoint, container, key string) string {
	return strings.TrimRight(endpoint, "/") + "/" + container + "/" + strings.TrimLeft(key, "/")
}

// AccountFromHost extracts the account identity from an endpoint host:
// the first DNS label, e.g. "mystore" for mystore.blob.core.windows.net.
// Hosts without dots (local emulators addressed by IP:port keep their
// account in the path instead) are returned unchanged.
func AccountFromHost(host string) string {
	if idx := strings.IndexByte(host, '.'); idx > 0 {
		return host[:idx]
	}
	return host
}
