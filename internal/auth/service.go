package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursedesk.org/internal/ids"
	"coursedesk.org/internal/obs"
)

// DefaultCategoryCode is assigned to organizations registered through signup.
const DefaultCategoryCode = "COACHING"

// CredentialVerifier checks an email/password pair against the identity
// provider and returns the provider's subject id.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, email, password string) (string, error)
}

// IdentityProvider is the external identity system used for login and signup.
type IdentityProvider interface {
	CredentialVerifier
	CreateUser(ctx context.Context, email, password string) (string, error)
	DeleteUser(ctx context.Context, subject string) error
}

// Directory stores organizations and organization-user role mappings.
type Directory interface {
	OrganizationByAuthUser(ctx context.Context, subject string) (Organization, error)
	RoleFor(ctx context.Context, organizationID, userID string) (string, error)
	CreateOrganization(ctx context.Context, in NewOrganization) (Organization, error)
	LinkUser(ctx context.Context, m Membership) error
}

// Session is the outcome of a successful login or signup.
type Session struct {
	Token        string
	ExpiresAt    time.Time
	Principal    Principal
	Organization Organization
}

// SignupRequest carries the organization registration form.
type SignupRequest struct {
	OrgName  string `json:"orgName"`
	OrgType  string `json:"orgType"`
	Country  string `json:"country"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service implements login and signup on top of the identity provider,
// the organization directory and the token issuer.
type Service struct {
	identity  IdentityProvider
	directory Directory
	tokens    *TokenService
	newCode   func() (string, error)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithCodeGenerator overrides the organization code generator.
func WithCodeGenerator(gen func() (string, error)) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// NewService wires a Service.
func NewService(identity IdentityProvider, directory Directory, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if identity == nil || directory == nil || tokens == nil {
		return nil, errors.New("auth: identity, directory and tokens are required")
	}
	s := &Service{
		identity:  identity,
		directory: directory,
		tokens:    tokens,
		newCode:   ids.OrganizationCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the token service backing this Service.
func (s *Service) Tokens() *TokenService { return s.tokens }

// ResolveOrganization looks up the organization owned by subject and then the
// subject's role inside it. The role lookup never runs when the first step fails.
func (s *Service) ResolveOrganization(ctx context.Context, subject string) (Organization, string, error) {
	org, err := s.directory.OrganizationByAuthUser(ctx, subject)
	if err != nil {
		return Organization{}, "", err
	}
	role, err := s.directory.RoleFor(ctx, org.ID, subject)
	if err != nil {
		return Organization{}, "", err
	}
	return org, role, nil
}

// Login authenticates the credentials and issues a session token scoped to the
// caller's organization.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, Invalid("Email and password are required")
	}
	subject, err := s.identity.VerifyPassword(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	org, role, err := s.ResolveOrganization(ctx, subject)
	if err != nil {
		return Session{}, err
	}
	// в токен идёт email из записи организации, а не то, что ввёл клиент
	if org.EmailID != "" {
		email = org.EmailID
	}
	return s.issue(org, role, subject, email)
}

// Signup registers a new identity and organization, maps the identity as the
// organization's primary ADMIN and issues a session token. When the
// organization insert fails the new identity is deleted again.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Session, error) {
	req.OrgName = strings.TrimSpace(req.OrgName)
	req.OrgType = strings.TrimSpace(req.OrgType)
	req.Country = strings.TrimSpace(req.Country)
	req.Email = strings.TrimSpace(req.Email)
	if req.OrgName == "" || req.OrgType == "" || req.Country == "" || req.Email == "" || req.Password == "" {
		return Session{}, Invalid("Missing required fields")
	}

	subject, err := s.identity.CreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("create identity: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		s.rollbackIdentity(ctx, subject, err)
		return Session{}, fmt.Errorf("generate organization code: %w", err)
	}
	org, err := s.directory.CreateOrganization(ctx, NewOrganization{
		AuthUserID:   subject,
		Code:         code,
		FullName:     req.OrgName,
		EmailID:      req.Email,
		TypeCode:     req.OrgType,
		CategoryCode: DefaultCategoryCode,
		CountryCode:  req.Country,
	})
	if err != nil {
		s.rollbackIdentity(ctx, subject, err)
		return Session{}, err
	}

	if err := s.directory.LinkUser(ctx, Membership{
		OrganizationID: org.ID,
		UserID:         subject,
		Role:           RoleAdmin,
		Primary:        true,
	}); err != nil {
		return Session{}, err
	}
	return s.issue(org, RoleAdmin, subject, req.Email)
}

// rollbackIdentity is the compensating step of signup. Its own failure is
// logged and otherwise ignored.
func (s *Service) rollbackIdentity(ctx context.Context, subject string, cause error) {
	fields := map[string]any{
		"subject": subject,
		"cause":   cause.Error(),
	}
	if err := s.identity.DeleteUser(context.WithoutCancel(ctx), subject); err != nil {
		fields["error"] = err.Error()
		obs.Error("signup_rollback_failed", fields)
		return
	}
	obs.Warn("signup_rollback", fields)
}

func (s *Service) issue(org Organization, role, subject, email string) (Session, error) {
	p := Principal{
		OrganizationID:   org.ID,
		OrganizationCode: org.Code,
		UserID:           subject,
		EmailID:          email,
		Role:             role,
	}
	token, expiresAt, err := s.tokens.Issue(p)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:        token,
		ExpiresAt:    expiresAt,
		Principal:    p,
		Organization: org,
	}, nil
}
