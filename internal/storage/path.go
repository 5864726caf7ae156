// Package storage manages course media in object storage: organization-scoped
// object keys, upload and delete against the bucket, and signed CDN URLs.
package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"coursedesk.org/internal/auth"
)

// NormalizeKey turns whatever the client sent (a bare key, a CDN URL, a key
// with a leading "--" marker or a query string) into an object key under the
// organization's prefix. Keys that try to leave the prefix are rejected.
func NormalizeKey(raw, orgCode string) (string, error) {
	if orgCode == "" {
		return "", auth.ErrUnauthorized
	}
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "--")

	if strings.HasPrefix(key, "http") {
		if u, err := url.Parse(key); err == nil && u.Host != "" {
			key = u.Path
		} else if _, rest, ok := strings.Cut(key, ".com/"); ok {
			key = rest
		}
	}
	if i := strings.IndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrMissingPath
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return "", ErrForbidden
		}
	}
	if !strings.HasPrefix(key, orgCode+"/") {
		key = orgCode + "/" + key
	}
	return key, nil
}

// ObjectKey builds the key for a new upload:
// <org>/<folder>/<course>/<unix-millis>_<file name>.
func ObjectKey(orgCode, folder, courseCode, fileName string, now time.Time) (string, error) {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	folder = strings.Trim(folder, "/")
	for _, part := range []string{folder, courseCode, name} {
		if part == "" {
			return "", fmt.Errorf("%w: empty segment", ErrInvalidKeyPart)
		}
		for _, seg := range strings.Split(part, "/") {
			if seg == "" || seg == "." || seg == ".." {
				return "", fmt.Errorf("%w: %q", ErrInvalidKeyPart, part)
			}
		}
	}
	if strings.Contains(courseCode, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKeyPart, courseCode)
	}
	return fmt.Sprintf("%s/%s/%s/%d_%s", orgCode, folder, courseCode, now.UnixMilli(), name), nil
}
