package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"coursedesk.org/internal/auth"
)

var (
	ErrMissingPath    = auth.Invalid("Missing file path")
	ErrForbidden      = errors.New("storage: object belongs to another organization")
	ErrNotFound       = errors.New("storage: object not found")
	ErrDeleteFailed   = errors.New("storage: object still present after delete")
	ErrInvalidKeyPart = errors.New("storage: invalid key segment")
	ErrDisabled       = errors.New("storage: not configured")
)

// DefaultSignedURLTTL is how long a download link stays valid.
const DefaultSignedURLTTL = 5 * time.Minute

// BlobStore is the object storage the service writes to.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// URLSigner produces time-limited CDN URLs.
type URLSigner interface {
	Sign(url string, expires time.Time) (string, error)
}

// Upload is a file received from the client.
type Upload struct {
	Folder      string
	CourseCode  string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploaded describes a stored file.
type Uploaded struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

type Service struct {
	blobs  BlobStore
	signer URLSigner
	domain string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithSignedURLTTL overrides DefaultSignedURLTTL.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service serving objects through the CDN at domain.
func NewService(blobs BlobStore, signer URLSigner, domain string, opts ...Option) (*Service, error) {
	if blobs == nil || signer == nil || domain == "" {
		return nil, errors.New("storage: blob store, signer and domain are required")
	}
	s := &Service{
		blobs:  blobs,
		signer: signer,
		domain: domain,
		ttl:    DefaultSignedURLTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Upload stores the file under the caller's organization and returns its CDN URL.
func (s *Service) Upload(ctx context.Context, p auth.Principal, in Upload) (Uploaded, error) {
	if s == nil {
		return Uploaded{}, ErrDisabled
	}
	if p.OrganizationCode == "" {
		return Uploaded{}, auth.ErrUnauthorized
	}
	if in.Body == nil || in.FileName == "" || in.Folder == "" || in.CourseCode == "" {
		return Uploaded{}, auth.Invalid("Missing file, folder, or course_code")
	}
	key, err := ObjectKey(p.OrganizationCode, in.Folder, in.CourseCode, in.FileName, s.now())
	if err != nil {
		return Uploaded{}, auth.Invalid(err.Error())
	}
	if err := s.blobs.Put(ctx, key, in.Body, in.Size, in.ContentType); err != nil {
		return Uploaded{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Uploaded{
		Key:      key,
		URL:      s.publicURL(key),
		FileName: lastSegment(key),
	}, nil
}

// Delete removes an object owned by the caller's organization. The object must
// exist beforehand and must be gone afterwards.
func (s *Service) Delete(ctx context.Context, p auth.Principal, rawPath string) (string, error) {
	if s == nil {
		return "", ErrDisabled
	}
	key, err := NormalizeKey(rawPath, p.OrganizationCode)
	if err != nil {
		return "", err
	}
	ok, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("delete %s: %w", key, err)
	}
	still, err := s.blobs.Exists(ctx, key)
	if err != nil || still {
		return "", ErrDeleteFailed
	}
	return key, nil
}

// SignedURL returns a time-limited CDN link for an object owned by the
// caller's organization.
func (s *Service) SignedURL(p auth.Principal, rawPath string) (string, time.Time, error) {
	if s == nil {
		return "", time.Time{}, ErrDisabled
	}
	key, err := NormalizeKey(rawPath, p.OrganizationCode)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(s.ttl)
	signed, err := s.signer.Sign(s.publicURL(key), expires)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign url: %w", err)
	}
	return signed, expires, nil
}

func (s *Service) publicURL(key string) string {
	return "https://" + s.domain + "/" + key
}

func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
