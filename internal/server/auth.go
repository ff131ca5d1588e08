// Package server verifies the bearer tokens presented by connecting
// clients before they are admitted to the hub.
package server

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that cannot be verified,
// regardless of the underlying cause. Callers never see raw parse or
// signature errors.
var ErrInvalidToken = errors.New("invalid token")

// VerifyIdentity validates an HMAC-signed JWT and extracts the stable
// user identity from its userId claim. The claim must be present and
// non-empty. VerifyIdentity has no shared state and is safe for
// concurrent use.
func VerifyIdentity(secret []byte, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	identity, ok := claims["userId"].(string)
	if !ok || identity == "" {
		return "", ErrInvalidToken
	}

	return identity, nil
}
