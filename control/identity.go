package control

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// identityClaims carries a stable client identity across reconnects
// (spec §4.5's "a reconnecting Client is recognized as the same peer").
type identityClaims struct {
	jwt.RegisteredClaims
}

// GenerateIdentity returns a fresh, random client identity subject. Callers
// that don't need a signed, verifiable identity token can pass this
// directly to NewClient; callers that do should wrap it with
// SignIdentityToken instead.
func GenerateIdentity() string {
	return uuid.NewString()
}

// SignIdentityToken signs subject into a JWT that VerifyIdentityToken can
// later check without any server-side session state. control/router does
// not verify tokens: it keys clients by the plain identity string. ttl <= 0
// means the token never expires.
func SignIdentityToken(subject string, signingKey []byte, ttl time.Duration) (string, error) {
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("control: signing identity token: %w", err)
	}
	return signed, nil
}

// VerifyIdentityToken checks tokenString's signature against signingKey
// and, if valid and unexpired, returns the identity subject it carries.
func VerifyIdentityToken(tokenString string, signingKey []byte) (string, error) {
	var claims identityClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("control: verifying identity token: %w", err)
	}
	return claims.Subject, nil
}
