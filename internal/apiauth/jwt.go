package apiauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the caller a JWT bearer token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub"`
}

// JWTService signs and validates bearer tokens for service-to-service
// callers of the Alerts API.
type JWTService struct {
	secret []byte
	issuer string
}

// NewJWTService builds a JWTService from a shared secret.
func NewJWTService(secret []byte) *JWTService {
	return &JWTService{secret: secret, issuer: "evtxhunter-api"}
}

// GenerateToken issues a signed token for subject, valid for ttl.
func (s *JWTService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Subject: subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and validates a bearer token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	return claims, nil
}
