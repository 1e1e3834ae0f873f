// Package auth issues and verifies the service's bearer tokens and runs
// the OAuth2 code exchange against the configured identity providers.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkwatch/inkwatch/internal/errs"
)

// JWTAgent signs and verifies tokens with an HMAC secret. The algorithm is
// fixed by configuration; tokens signed with anything else are rejected.
type JWTAgent struct {
	secret []byte
	method jwt.SigningMethod
	expire time.Duration
}

// NewJWTAgent builds a token agent. algorithm is one of HS256/HS384/HS512.
func NewJWTAgent(secret, algorithm string, expire time.Duration) *JWTAgent {
	var method jwt.SigningMethod
	switch algorithm {
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		method = jwt.SigningMethodHS256
	}
	return &JWTAgent{
		secret: []byte(secret),
		method: method,
		expire: expire,
	}
}

// Issue signs a token for the local user id.
func (a *JWTAgent) Issue(uid int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(uid, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.expire)),
	}
	token, err := jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
	if err != nil {
		return "", errs.Internal(err)
	}
	return token, nil
}

// Verify parses and validates a token, returning the user id it names.
func (a *JWTAgent) Verify(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, errs.Jwt(jwt.ErrSignatureInvalid)
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, errs.Jwt(err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, errs.Unauthorized()
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, errs.Unauthorized()
	}
	return uid, nil
}
