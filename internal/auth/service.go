package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/noah-isme/backend-earn/internal/common"
)

// OperatorFinder is the slice of Store the service needs.
type OperatorFinder interface {
	ByEmail(ctx context.Context, email string) (Operator, error)
	ByID(ctx context.Context, id string) (Operator, error)
}

// Service authenticates operators and mints their session tokens.
type Service struct {
	Operators OperatorFinder
	Tokens    TokenIssuer
}

// Session is the result of a successful login.
type Session struct {
	Operator    Operator
	AccessToken string
}

var errInvalidCredentials = common.NewAppError(
	"INVALID_CREDENTIALS", "email or password is incorrect", http.StatusUnauthorized,
)

// Login verifies the operator's password and mints an access token.
// Unknown emails and bad passwords report the same error.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	op, err := s.Operators.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, errInvalidCredentials
		}
		return Session{}, err
	}

	match, err := argon2id.ComparePasswordAndHash(password, op.PasswordHash)
	if err != nil || !match {
		return Session{}, errInvalidCredentials
	}

	access, err := s.Tokens.Mint(op.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Operator: op, AccessToken: access}, nil
}

// HashPassword produces an argon2id hash for seeding and account creation.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}
