package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coursedesk.org/internal/auth"
)

func newTestGoTrue(t *testing.T, h http.HandlerFunc) *GoTrue {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewGoTrue(srv.URL+"/", "anon-key", "service-key", time.Second)
	if err != nil {
		t.Fatalf("NewGoTrue: %v", err)
	}
	return g
}

func TestNewGoTrueRequiresKeys(t *testing.T) {
	if _, err := NewGoTrue("http://localhost", "", "svc", 0); err == nil {
		t.Fatal("expected error for missing anon key")
	}
}

func TestGoTrueVerifyPassword(t *testing.T) {
	g := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("password grant must use anon key, got %q", r.Header.Get("apikey"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "owner@acme.test" || body["password"] != "s3cret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"x","user":{"id":"user-1","email":"owner@acme.test"}}`))
	})

	subject, err := g.VerifyPassword(context.Background(), "owner@acme.test", "s3cret")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject %q", subject)
	}

	_, err = g.VerifyPassword(context.Background(), "owner@acme.test", "wrong")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err.Error() != "Invalid login credentials" {
		t.Fatalf("provider message lost: %q", err.Error())
	}
}

func TestGoTrueVerifyPasswordServerError(t *testing.T) {
	g := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := g.VerifyPassword(context.Background(), "a@b.c", "pw")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatal("upstream failure must not look like bad credentials")
	}
}

func TestGoTrueCreateAndDeleteUser(t *testing.T) {
	var deleted string
	g := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("admin calls must use service key, got %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/admin/users":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email_confirm"] != true {
				t.Errorf("expected email_confirm=true, got %v", body["email_confirm"])
			}
			if body["email"] == "taken@acme.test" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"code":422,"msg":"A user with this email address has already been registered"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"user-9","email":"new@acme.test"}`))
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	id, err := g.CreateUser(context.Background(), "new@acme.test", "pw")
	if err != nil || id != "user-9" {
		t.Fatalf("CreateUser: id=%q err=%v", id, err)
	}

	_, err = g.CreateUser(context.Background(), "taken@acme.test", "pw")
	if !errors.Is(err, auth.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "A user with this email address has already been registered" {
		t.Fatalf("expected provider message, got %v", err)
	}

	if err := g.DeleteUser(context.Background(), "user-9"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if deleted != "/auth/v1/admin/users/user-9" {
		t.Fatalf("unexpected delete path %q", deleted)
	}
	if err := g.DeleteUser(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty subject")
	}
}
