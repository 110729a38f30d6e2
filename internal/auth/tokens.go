package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenIssuer mints and parses the HS256 access tokens operator sessions
// ride on.
type TokenIssuer struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

func (t TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Mint creates a signed access token for the operator.
func (t TokenIssuer) Mint(operatorID string) (string, error) {
	now := t.now()
	tok, err := jwt.NewBuilder().
		Issuer(t.Issuer).
		Audience([]string{t.Audience}).
		Subject(operatorID).
		IssuedAt(now).
		Expiration(now.Add(t.TTL)).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Parse validates a signed token and returns the operator id it carries.
func (t TokenIssuer) Parse(raw string) (string, error) {
	tok, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(t.Issuer),
		jwt.WithAudience(t.Audience),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	return tok.Subject(), nil
}
