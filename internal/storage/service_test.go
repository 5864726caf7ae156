package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"coursedesk.org/internal/auth"
)

type memBlobs struct {
	objects    map[string][]byte
	types      map[string]string
	keepOnDrop bool
	headErr    error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memBlobs) Exists(_ context.Context, key string) (bool, error) {
	if m.headErr != nil {
		return false, m.headErr
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	if !m.keepOnDrop {
		delete(m.objects, key)
	}
	return nil
}

type recordingSigner struct {
	url     string
	expires time.Time
}

func (r *recordingSigner) Sign(u string, expires time.Time) (string, error) {
	r.url, r.expires = u, expires
	return u + "?Signature=test", nil
}

var (
	testNow   = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	principal = auth.Principal{OrganizationID: "org-A", OrganizationCode: "ACM001", EmailID: "owner@acme.test"}
)

func newTestService(t *testing.T, blobs BlobStore, signer URLSigner) *Service {
	t.Helper()
	svc, err := NewService(blobs, signer, "d111.cloudfront.net", WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestUpload(t *testing.T) {
	blobs := newMemBlobs()
	svc := newTestService(t, blobs, &recordingSigner{})

	out, err := svc.Upload(context.Background(), principal, Upload{
		Folder:      "thumbnails",
		CourseCode:  "C1",
		FileName:    "cover.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	wantKey := "ACM001/thumbnails/C1/1740823200000_cover.png"
	if out.Key != wantKey || out.FileName != "1740823200000_cover.png" {
		t.Fatalf("unexpected upload result: %+v", out)
	}
	if out.URL != "https://d111.cloudfront.net/"+wantKey {
		t.Fatalf("unexpected url %q", out.URL)
	}
	if string(blobs.objects[wantKey]) != "png-bytes" || blobs.types[wantKey] != "image/png" {
		t.Fatalf("object not stored: %v", blobs.objects)
	}
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService(t, newMemBlobs(), &recordingSigner{})
	_, err := svc.Upload(context.Background(), principal, Upload{Folder: "thumbnails", FileName: "a.png", Body: strings.NewReader("x")})
	if !errors.Is(err, auth.ErrInvalidInput) || err.Error() != "Missing file, folder, or course_code" {
		t.Fatalf("expected missing field error, got %v", err)
	}
	_, err = svc.Upload(context.Background(), principal, Upload{Folder: "../etc", CourseCode: "C1", FileName: "a.png", Body: strings.NewReader("x")})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input for traversal, got %v", err)
	}
	_, err = svc.Upload(context.Background(), auth.Principal{}, Upload{})
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	blobs := newMemBlobs()
	blobs.objects["ACM001/thumbnails/C1/1_a.png"] = []byte("x")
	svc := newTestService(t, blobs, &recordingSigner{})

	key, err := svc.Delete(context.Background(), principal, "https://d111.cloudfront.net/ACM001/thumbnails/C1/1_a.png?Expires=1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if key != "ACM001/thumbnails/C1/1_a.png" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, ok := blobs.objects[key]; ok {
		t.Fatal("object still present")
	}

	if _, err := svc.Delete(context.Background(), principal, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteStillPresent(t *testing.T) {
	blobs := newMemBlobs()
	blobs.keepOnDrop = true
	blobs.objects["ACM001/a.png"] = []byte("x")
	svc := newTestService(t, blobs, &recordingSigner{})

	if _, err := svc.Delete(context.Background(), principal, "a.png"); !errors.Is(err, ErrDeleteFailed) {
		t.Fatalf("expected ErrDeleteFailed, got %v", err)
	}
}

func TestDeleteUpstreamError(t *testing.T) {
	blobs := newMemBlobs()
	blobs.headErr = errors.New("AccessDenied")
	svc := newTestService(t, blobs, &recordingSigner{})

	_, err := svc.Delete(context.Background(), principal, "a.png")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestSignedURLScopedToOrganization(t *testing.T) {
	signer := &recordingSigner{}
	svc := newTestService(t, newMemBlobs(), signer)

	signed, expires, err := svc.SignedURL(principal, "thumbnails/C1/1_a.png")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if signer.url != "https://d111.cloudfront.net/ACM001/thumbnails/C1/1_a.png" {
		t.Fatalf("unexpected signed target %q", signer.url)
	}
	if !expires.Equal(testNow.Add(DefaultSignedURLTTL)) || !signer.expires.Equal(expires) {
		t.Fatalf("unexpected expiry %v", expires)
	}
	if !strings.HasSuffix(signed, "?Signature=test") {
		t.Fatalf("unexpected signed url %q", signed)
	}

	if _, _, err := svc.SignedURL(principal, "../ZZZ999/secret.pdf"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestNilServiceIsDisabled(t *testing.T) {
	var svc *Service
	if _, _, err := svc.SignedURL(principal, "a.png"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func TestCloudFrontSigner(t *testing.T) {
	pemText := testPrivateKeyPEM(t)
	// env vars usually carry the key on one line
	oneLine := strings.ReplaceAll(pemText, "\n", `\n`)

	signer, err := NewCloudFrontSigner("KPAIR123", oneLine)
	if err != nil {
		t.Fatalf("NewCloudFrontSigner: %v", err)
	}
	svc := newTestService(t, newMemBlobs(), signer)
	signed, _, err := svc.SignedURL(principal, "a.png")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	q := u.Query()
	if u.Path != "/ACM001/a.png" || q.Get("Key-Pair-Id") != "KPAIR123" || q.Get("Signature") == "" || q.Get("Expires") == "" {
		t.Fatalf("unexpected signed url %q", signed)
	}

	if _, err := NewCloudFrontSigner("KPAIR123", "not a pem"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if _, err := NewCloudFrontSigner("", pemText); err == nil {
		t.Fatal("expected error for missing key pair id")
	}
}
