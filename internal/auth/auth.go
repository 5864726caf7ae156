package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL is the fixed lifetime of a session token. There is no refresh.
	SessionTTL = 12 * time.Hour

	// MinSecretBytes is the shortest signing secret NewTokenService accepts.
	MinSecretBytes = 32

	authHeader = "Authorization"
	bearer     = "Bearer "
)

type sessionClaims struct {
	Principal
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens with a shared secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(clock func() time.Time) TokenOption {
	return func(s *TokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewTokenService constructs a TokenService. The secret is required and must
// be at least MinSecretBytes long.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretBytes {
		return nil, errors.New("auth: token secret must be at least 32 bytes")
	}
	s := &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a session token for the principal. The token expires SessionTTL
// after issuance.
func (s *TokenService) Issue(p Principal) (string, time.Time, error) {
	if strings.TrimSpace(p.OrganizationID) == "" ||
		strings.TrimSpace(p.OrganizationCode) == "" ||
		strings.TrimSpace(p.UserID) == "" ||
		strings.TrimSpace(p.EmailID) == "" ||
		strings.TrimSpace(p.Role) == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	now := s.now().UTC()
	expiresAt := now.Add(SessionTTL)
	claims := sessionClaims{
		Principal: p,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the embedded principal.
// Any failure is reported as ErrInvalidToken.
func (s *TokenService) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.OrganizationID) == "" || strings.TrimSpace(claims.OrganizationCode) == "" {
		return Principal{}, ErrInvalidToken
	}
	return claims.Principal, nil
}

// Authorize is the request gate: it returns the principal carried by the
// bearer token, or false when the request is unauthenticated for any reason.
func (s *TokenService) Authorize(r *http.Request) (p Principal, ok bool) {
	defer func() {
		if recover() != nil {
			p, ok = Principal{}, false
		}
	}()
	if s == nil || r == nil {
		return Principal{}, false
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return Principal{}, false
	}
	p, err = s.Verify(token)
	if err != nil {
		return Principal{}, false
	}
	return p, true
}

// BearerValue formats a token for the Authorization header.
func BearerValue(token string) string {
	return bearer + token
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
