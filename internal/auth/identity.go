// Package auth verifies identities issued by the external identity provider
// and hands out the Admin capability to users holding the admin role.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrUnauthenticated = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden: admin access required")
)

// Identity is a verified caller.
type Identity struct {
	UserID string
	Email  string
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens signed by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify parses and validates raw, returning the identity it carries. Every
// failure is reported as ErrUnauthenticated.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	var c claims
	tok, err := v.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	if v.issuer != "" && !c.VerifyIssuer(v.issuer, true) {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrUnauthenticated, c.Issuer)
	}
	return Identity{UserID: c.Subject, Email: c.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// IssueToken signs a token the way the identity provider does. Used for
// local development and tests.
func IssueToken(secret, issuer string, id Identity, now time.Time, ttl time.Duration) (string, error) {
	c := claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
