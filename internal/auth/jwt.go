package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the run API token claims.
type Claims struct {
	Scope  string   `json:"scope"`
	Tables []string `json:"tables,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts validated claims into a caller identity.
func (c *Claims) Identity() (Identity, error) {
	scopes, ok := ParseScopes(c.Scope)
	if !ok {
		return Identity{}, errors.New("auth: invalid scope")
	}
	return Identity{Subject: c.Subject, Scopes: scopes, Tables: c.Tables}, nil
}

// ParseJWT validates an HS256 token and returns the identity it carries.
func ParseJWT(tokenString string, secret []byte) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return Identity{}, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("auth: missing subject")
	}
	return claims.Identity()
}

// IssueJWT signs a token for id, valid for ttl.
func IssueJWT(secret []byte, id Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	scope := JoinScopes(id.Scopes)
	if _, ok := ParseScopes(scope); !ok {
		return "", errors.New("auth: invalid scope")
	}
	now := time.Now()
	claims := Claims{
		Scope:  scope,
		Tables: id.Tables,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
