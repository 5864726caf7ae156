package auth

import "strings"

// RoleAdmin is assigned to the user who registers an organization.
const RoleAdmin = "ADMIN"

// Principal is the verified identity attached to an authorized request.
// UserID and Role are always set at issue time but tolerated as absent when
// reading tokens minted by older deployments.
type Principal struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationCode string `json:"organization_code"`
	UserID           string `json:"user_id,omitempty"`
	EmailID          string `json:"email_id"`
	Role             string `json:"role,omitempty"`
}

// HasRole reports whether the principal carries the role (case-insensitive).
func (p Principal) HasRole(role string) bool {
	return p.Role != "" && strings.EqualFold(p.Role, strings.TrimSpace(role))
}

// Organization is the tenant record owned by an identity-provider subject.
type Organization struct {
	ID           string `json:"organization_id"`
	Code         string `json:"code"`
	FullName     string `json:"full_name"`
	EmailID      string `json:"email_id,omitempty"`
	TypeCode     string `json:"type_code"`
	CategoryCode string `json:"category_code"`
	CountryCode  string `json:"country_code"`
	StatusCode   string `json:"status_code,omitempty"`
}

// NewOrganization carries the fields written during signup.
type NewOrganization struct {
	AuthUserID   string
	Code         string
	FullName     string
	EmailID      string
	TypeCode     string
	CategoryCode string
	CountryCode  string
}

// Membership maps an identity to an organization with a role.
type Membership struct {
	OrganizationID string
	UserID         string
	Role           string
	Primary        bool
}
