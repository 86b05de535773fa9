package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint builds an API URL from a base URI, a route and optional query
// parameters. Any path already present on the base is kept as a prefix, so
// "http://host/api" + "/auth/nonce" becomes "http://host/api/auth/nonce".
// Ensures no double slashes between base and route. The route must already be
// escaped; it is appended verbatim and dot segments are never resolved.
func Endpoint(base, route string, query url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URI %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URI %q must be absolute", base)
	}

	rawPath := strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.TrimLeft(route, "/")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("parse route %q: %w", route, err)
	}
	u.Path, u.RawPath = path, rawPath
	u.RawQuery, u.Fragment, u.RawFragment = "", "", ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// EscapeKey escapes an object key for use in a route. Each "/"-separated
// segment is escaped independently so keys keep their hierarchy.
func EscapeKey(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = EscapeSegment(s)
	}
	return strings.Join(segments, "/")
}

// EscapeSegment escapes a single path segment such as a bucket name or ID.
// "." and ".." are percent-encoded so they stay literal on the wire.
func EscapeSegment(s string) string {
	switch s {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(s)
}

// Host returns the host[:port] of a URI, used as the sign-in domain.
func Host(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("URI %q has no host", uri)
	}
	return u.Host, nil
}
