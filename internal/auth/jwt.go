package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

var (
	ErrSecretNotSet = errors.New("JWT secret not set")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Authenticator issues and checks operator tokens for the admin API.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Claims represents the JWT payload
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the given operator
func (a *Authenticator) GenerateToken(operator string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrSecretNotSet
	}

	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a JWT string
func (a *Authenticator) ValidateToken(tokenStr string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrSecretNotSet
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
