package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"coursedesk.org/internal/auth"
)

// Local keeps identities in the auth_users table. Used for development and
// self-hosted setups without a GoTrue server.
type Local struct {
	db   *sql.DB
	cost int
}

var _ auth.IdentityProvider = (*Local)(nil)

func NewLocal(db *sql.DB) *Local {
	return &Local{db: db, cost: bcrypt.DefaultCost}
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (l *Local) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	var id, hash string
	err := l.db.QueryRowContext(ctx, `
		select id, password_hash
		from auth_users
		where email = $1
	`, normalizeEmail(email)).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &auth.CredentialError{}
	}
	if err != nil {
		return "", fmt.Errorf("lookup identity: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", &auth.CredentialError{}
	}
	return id, nil
}

func (l *Local) CreateUser(ctx context.Context, email, password string) (string, error) {
	hash, err := HashPassword(password, l.cost)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx, `
		insert into auth_users (id, email, password_hash)
		values ($1, $2, $3)
	`, id, normalizeEmail(email), hash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%w: %w", auth.ErrIdentityExists, &StatusError{
				Status:  http.StatusUnprocessableEntity,
				Message: "A user with this email address has already been registered",
			})
		}
		return "", fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (l *Local) DeleteUser(ctx context.Context, subject string) error {
	_, err := l.db.ExecContext(ctx, `delete from auth_users where id = $1`, subject)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
