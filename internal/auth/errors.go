package auth

import "errors"

var (
	ErrInvalidInput         = errors.New("auth: invalid input")
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrUnauthorized         = errors.New("auth: unauthorized")
	ErrOrganizationNotFound = errors.New("auth: organization not found")
	ErrRoleNotFound         = errors.New("auth: role not found")
	ErrIdentityExists       = errors.New("auth: identity already exists")
)

// ValidationError carries a client-facing message for malformed requests.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Invalid returns a validation error with the given message.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// CredentialError is returned by credential verifiers when the identity
// provider rejects a login. Message is the provider's own wording and may be empty.
type CredentialError struct {
	Message string
}

func (e *CredentialError) Error() string {
	if e.Message == "" {
		return "Invalid credentials"
	}
	return e.Message
}

func (e *CredentialError) Is(target error) bool { return target == ErrInvalidCredentials }
