package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubIdentity struct {
	verifyFn func(ctx context.Context, email, password string) (string, error)
	createFn func(ctx context.Context, email, password string) (string, error)
	deleteFn func(ctx context.Context, subject string) error
	deleted  []string
}

func (s *stubIdentity) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	if s.verifyFn == nil {
		return "", errors.New("not implemented")
	}
	return s.verifyFn(ctx, email, password)
}

func (s *stubIdentity) CreateUser(ctx context.Context, email, password string) (string, error) {
	if s.createFn == nil {
		return "", errors.New("not implemented")
	}
	return s.createFn(ctx, email, password)
}

func (s *stubIdentity) DeleteUser(ctx context.Context, subject string) error {
	s.deleted = append(s.deleted, subject)
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, subject)
}

type stubDirectory struct {
	orgFn    func(ctx context.Context, subject string) (Organization, error)
	roleFn   func(ctx context.Context, organizationID, userID string) (string, error)
	createFn func(ctx context.Context, in NewOrganization) (Organization, error)
	linkFn   func(ctx context.Context, m Membership) error

	roleCalls int
	created   []NewOrganization
	links     []Membership
}

func (s *stubDirectory) OrganizationByAuthUser(ctx context.Context, subject string) (Organization, error) {
	return s.orgFn(ctx, subject)
}

func (s *stubDirectory) RoleFor(ctx context.Context, organizationID, userID string) (string, error) {
	s.roleCalls++
	return s.roleFn(ctx, organizationID, userID)
}

func (s *stubDirectory) CreateOrganization(ctx context.Context, in NewOrganization) (Organization, error) {
	s.created = append(s.created, in)
	return s.createFn(ctx, in)
}

func (s *stubDirectory) LinkUser(ctx context.Context, m Membership) error {
	s.links = append(s.links, m)
	if s.linkFn == nil {
		return nil
	}
	return s.linkFn(ctx, m)
}

var acme = Organization{
	ID:           "org-a",
	Code:         "ACM001",
	FullName:     "Acme Coaching",
	EmailID:      "a@x.com",
	TypeCode:     "INSTITUTE",
	CategoryCode: DefaultCategoryCode,
	CountryCode:  "IN",
	StatusCode:   "ACTIVE",
}

func newTestService(t *testing.T, id *stubIdentity, dir *stubDirectory) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	svc, err := NewService(id, dir, newTestTokens(t, clock), WithCodeGenerator(func() (string, error) {
		return "ACM001", nil
	}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, clock
}

func TestLoginIssuesScopedToken(t *testing.T) {
	id := &stubIdentity{verifyFn: func(_ context.Context, email, password string) (string, error) {
		if email != "a@x.com" || password != "pw" {
			t.Fatalf("unexpected credentials %q/%q", email, password)
		}
		return "u1", nil
	}}
	dir := &stubDirectory{
		orgFn: func(_ context.Context, subject string) (Organization, error) {
			if subject != "u1" {
				t.Fatalf("unexpected subject %q", subject)
			}
			return acme, nil
		},
		roleFn: func(_ context.Context, orgID, userID string) (string, error) {
			if orgID != "org-a" || userID != "u1" {
				t.Fatalf("unexpected role lookup %q/%q", orgID, userID)
			}
			return RoleAdmin, nil
		},
	}
	svc, _ := newTestService(t, id, dir)

	session, err := svc.Login(context.Background(), "a@x.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Organization != acme {
		t.Fatalf("unexpected organization: %+v", session.Organization)
	}

	p, err := svc.Tokens().Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := Principal{
		OrganizationID:   "org-a",
		OrganizationCode: "ACM001",
		UserID:           "u1",
		EmailID:          "a@x.com",
		Role:             RoleAdmin,
	}
	if p != want {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestLoginTokenCarriesOrganizationEmail(t *testing.T) {
	id := &stubIdentity{verifyFn: func(context.Context, string, string) (string, error) { return "u1", nil }}
	org := acme
	dir := &stubDirectory{
		orgFn:  func(context.Context, string) (Organization, error) { return org, nil },
		roleFn: func(context.Context, string, string) (string, error) { return RoleAdmin, nil },
	}
	svc, _ := newTestService(t, id, dir)

	session, err := svc.Login(context.Background(), "  A@X.com ", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := svc.Tokens().Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.EmailID != "a@x.com" || session.Principal.EmailID != "a@x.com" {
		t.Fatalf("token email should come from the organization record, got %q", p.EmailID)
	}

	// запись без email: остаётся введённый адрес
	org.EmailID = ""
	session, err = svc.Login(context.Background(), "Owner@X.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Principal.EmailID != "Owner@X.com" {
		t.Fatalf("expected input email fallback, got %q", session.Principal.EmailID)
	}
}

func TestLoginRequiresEmailAndPassword(t *testing.T) {
	svc, _ := newTestService(t, &stubIdentity{}, &stubDirectory{})
	for _, creds := range [][2]string{{"", "pw"}, {"a@x.com", ""}, {"  ", ""}} {
		_, err := svc.Login(context.Background(), creds[0], creds[1])
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if err.Error() != "Email and password are required" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	}
}

func TestLoginPassesThroughCredentialError(t *testing.T) {
	id := &stubIdentity{verifyFn: func(context.Context, string, string) (string, error) {
		return "", &CredentialError{Message: "Invalid login credentials"}
	}}
	dir := &stubDirectory{orgFn: func(context.Context, string) (Organization, error) {
		t.Fatal("directory must not be queried after credential failure")
		return Organization{}, nil
	}}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Login(context.Background(), "a@x.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err.Error() != "Invalid login credentials" {
		t.Fatalf("provider message not passed through: %q", err.Error())
	}
}

func TestLoginOrganizationNotFoundSkipsRoleLookup(t *testing.T) {
	id := &stubIdentity{verifyFn: func(context.Context, string, string) (string, error) { return "u2", nil }}
	dir := &stubDirectory{
		orgFn: func(context.Context, string) (Organization, error) {
			return Organization{}, ErrOrganizationNotFound
		},
		roleFn: func(context.Context, string, string) (string, error) { return RoleAdmin, nil },
	}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Login(context.Background(), "b@x.com", "pw")
	if !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
	if dir.roleCalls != 0 {
		t.Fatalf("role lookup ran %d times", dir.roleCalls)
	}
}

func TestLoginRoleNotFound(t *testing.T) {
	id := &stubIdentity{verifyFn: func(context.Context, string, string) (string, error) { return "u1", nil }}
	dir := &stubDirectory{
		orgFn:  func(context.Context, string) (Organization, error) { return acme, nil },
		roleFn: func(context.Context, string, string) (string, error) { return "", ErrRoleNotFound },
	}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Login(context.Background(), "a@x.com", "pw")
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestSignupCreatesOrganizationAndAdminMapping(t *testing.T) {
	id := &stubIdentity{createFn: func(context.Context, string, string) (string, error) { return "u9", nil }}
	dir := &stubDirectory{createFn: func(_ context.Context, in NewOrganization) (Organization, error) {
		return Organization{
			ID:           "org-new",
			Code:         in.Code,
			FullName:     in.FullName,
			EmailID:      in.EmailID,
			TypeCode:     in.TypeCode,
			CategoryCode: in.CategoryCode,
			CountryCode:  in.CountryCode,
		}, nil
	}}
	svc, _ := newTestService(t, id, dir)

	session, err := svc.Signup(context.Background(), SignupRequest{
		OrgName:  " Acme ",
		OrgType:  "INSTITUTE",
		Country:  "IN",
		Email:    "owner@acme.test",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if len(dir.created) != 1 {
		t.Fatalf("expected one organization insert, got %d", len(dir.created))
	}
	created := dir.created[0]
	if created.AuthUserID != "u9" || created.FullName != "Acme" || created.CategoryCode != DefaultCategoryCode || created.Code != "ACM001" {
		t.Fatalf("unexpected organization insert: %+v", created)
	}
	if len(dir.links) != 1 || dir.links[0] != (Membership{OrganizationID: "org-new", UserID: "u9", Role: RoleAdmin, Primary: true}) {
		t.Fatalf("unexpected membership: %+v", dir.links)
	}
	if session.Principal.Role != RoleAdmin || session.Principal.OrganizationID != "org-new" {
		t.Fatalf("unexpected principal: %+v", session.Principal)
	}
	if len(id.deleted) != 0 {
		t.Fatalf("identity deleted on success: %v", id.deleted)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newTestService(t, &stubIdentity{}, &stubDirectory{})
	_, err := svc.Signup(context.Background(), SignupRequest{OrgName: "Acme", Email: "a@x.com"})
	if !errors.Is(err, ErrInvalidInput) || err.Error() != "Missing required fields" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSignupRollsBackIdentityWhenOrganizationInsertFails(t *testing.T) {
	id := &stubIdentity{createFn: func(context.Context, string, string) (string, error) { return "u3", nil }}
	dir := &stubDirectory{createFn: func(context.Context, NewOrganization) (Organization, error) {
		return Organization{}, errors.New("duplicate key value violates unique constraint")
	}}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Signup(context.Background(), SignupRequest{
		OrgName: "Acme", OrgType: "INSTITUTE", Country: "IN", Email: "c@x.com", Password: "pw",
	})
	if err == nil {
		t.Fatal("expected signup error")
	}
	if len(id.deleted) != 1 || id.deleted[0] != "u3" {
		t.Fatalf("expected rollback of u3, got %v", id.deleted)
	}
	if len(dir.links) != 0 {
		t.Fatalf("membership must not be written after failed insert")
	}
}

func TestSignupRollbackFailureKeepsOriginalError(t *testing.T) {
	insertErr := errors.New("insert failed")
	id := &stubIdentity{
		createFn: func(context.Context, string, string) (string, error) { return "u4", nil },
		deleteFn: func(context.Context, string) error { return errors.New("provider down") },
	}
	dir := &stubDirectory{createFn: func(context.Context, NewOrganization) (Organization, error) {
		return Organization{}, insertErr
	}}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Signup(context.Background(), SignupRequest{
		OrgName: "Acme", OrgType: "INSTITUTE", Country: "IN", Email: "d@x.com", Password: "pw",
	})
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if len(id.deleted) != 1 {
		t.Fatalf("expected a single rollback attempt, got %d", len(id.deleted))
	}
}

func TestSignupIdentityFailureSkipsDirectory(t *testing.T) {
	id := &stubIdentity{createFn: func(context.Context, string, string) (string, error) {
		return "", errors.New("User already registered")
	}}
	dir := &stubDirectory{}
	svc, _ := newTestService(t, id, dir)

	_, err := svc.Signup(context.Background(), SignupRequest{
		OrgName: "Acme", OrgType: "INSTITUTE", Country: "IN", Email: "e@x.com", Password: "pw",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(dir.created) != 0 || len(id.deleted) != 0 {
		t.Fatalf("unexpected side effects: created=%d deleted=%d", len(dir.created), len(id.deleted))
	}
}
