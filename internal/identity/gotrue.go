// Package identity provides the external identity providers used for login
// and signup: a GoTrue-compatible REST client and a Postgres-backed local
// provider for development.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coursedesk.org/internal/auth"
)

// GoTrue talks to a GoTrue (Supabase Auth) server. Password grants use the
// anon key; user administration uses the service key.
type GoTrue struct {
	endpoint   string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

var _ auth.IdentityProvider = (*GoTrue)(nil)

// NewGoTrue returns a client for the server at endpoint.
func NewGoTrue(endpoint, anonKey, serviceKey string, timeout time.Duration) (*GoTrue, error) {
	if endpoint == "" || anonKey == "" || serviceKey == "" {
		return nil, errors.New("identity: endpoint, anon key and service key are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoTrue{
		endpoint:   strings.TrimRight(endpoint, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// StatusError is a non-2xx answer from the identity server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: status %d", e.Status)
	}
	return fmt.Sprintf("identity: status %d: %s", e.Status, e.Message)
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// VerifyPassword performs a password grant. Rejected credentials come back as
// auth.CredentialError carrying the server's message.
func (g *GoTrue) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		AccessToken string     `json:"access_token"`
		User        gotrueUser `json:"user"`
	}
	err := g.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", g.anonKey,
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Status == http.StatusBadRequest || se.Status == http.StatusUnauthorized) {
			return "", &auth.CredentialError{Message: se.Message}
		}
		return "", err
	}
	if resp.User.ID == "" {
		return "", &auth.CredentialError{}
	}
	return resp.User.ID, nil
}

// CreateUser registers a confirmed user through the admin API.
func (g *GoTrue) CreateUser(ctx context.Context, email, password string) (string, error) {
	var user gotrueUser
	err := g.do(ctx, http.MethodPost, "/auth/v1/admin/users", g.serviceKey, map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}, &user)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnprocessableEntity {
			return "", fmt.Errorf("%w: %w", auth.ErrIdentityExists, se)
		}
		return "", err
	}
	if user.ID == "" {
		return "", errors.New("identity: created user has no id")
	}
	return user.ID, nil
}

// DeleteUser removes a user through the admin API.
func (g *GoTrue) DeleteUser(ctx context.Context, subject string) error {
	if subject == "" {
		return errors.New("identity: subject is required")
	}
	return g.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(subject), g.serviceKey, nil, nil)
}

func (g *GoTrue) do(ctx context.Context, method, path, key string, payload, out any) error {
	if g == nil {
		return errors.New("identity: client is nil")
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// errorMessage picks the human readable text out of a GoTrue error body.
// Different server versions use different field names.
func errorMessage(body []byte) string {
	var e struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}
