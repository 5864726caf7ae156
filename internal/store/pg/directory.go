package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coursedesk.org/internal/auth"
)

// OrganizationByAuthUser returns the organization owned by the identity
// subject. When several rows match the oldest one wins.
func (s *Store) OrganizationByAuthUser(ctx context.Context, subject string) (auth.Organization, error) {
	var (
		org    auth.Organization
		status sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select organization_id, organization_code, full_name, email_id,
		       type_code, category_code, country_code, status_code
		from organizations
		where auth_user_id = $1
		order by created_at asc
		limit 1
	`, subject).Scan(&org.ID, &org.Code, &org.FullName, &org.EmailID,
		&org.TypeCode, &org.CategoryCode, &org.CountryCode, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Organization{}, auth.ErrOrganizationNotFound
	}
	if err != nil {
		return auth.Organization{}, fmt.Errorf("lookup organization: %w", err)
	}
	org.StatusCode = nullString(status)
	return org, nil
}

// RoleFor returns the role the user holds in the organization.
func (s *Store) RoleFor(ctx context.Context, organizationID, userID string) (string, error) {
	var role sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select user_role
		from organization_users
		where organization_id = $1 and user_id = $2
		limit 1
	`, organizationID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrRoleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup role: %w", err)
	}
	if !role.Valid || role.String == "" {
		return "", auth.ErrRoleNotFound
	}
	return role.String, nil
}

// CreateOrganization inserts the organization registered during signup.
func (s *Store) CreateOrganization(ctx context.Context, in auth.NewOrganization) (auth.Organization, error) {
	if s.db == nil {
		return auth.Organization{}, errors.New("database connection unavailable")
	}
	var (
		org    auth.Organization
		status sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (organization_id, auth_user_id, organization_code, full_name,
		                           email_id, type_code, category_code, country_code)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning organization_id, organization_code, full_name, email_id,
		          type_code, category_code, country_code, status_code
	`, uuid.NewString(), in.AuthUserID, in.Code, in.FullName, in.EmailID, in.TypeCode, in.CategoryCode, in.CountryCode)
	if err := row.Scan(&org.ID, &org.Code, &org.FullName, &org.EmailID,
		&org.TypeCode, &org.CategoryCode, &org.CountryCode, &status); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Organization{}, fmt.Errorf("create organization: %s", pgErr.Message)
		}
		return auth.Organization{}, err
	}
	org.StatusCode = nullString(status)
	return org, nil
}

// LinkUser records the user's role in the organization.
func (s *Store) LinkUser(ctx context.Context, m auth.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organization_users (organization_id, user_id, user_role, is_primary)
		values ($1, $2, $3, $4)
	`, m.OrganizationID, m.UserID, m.Role, m.Primary)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("link user: %w", auth.ErrIdentityExists)
		}
		return fmt.Errorf("link user: %w", err)
	}
	return nil
}
