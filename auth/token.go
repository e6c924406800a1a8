package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, expired and foreign tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

const (
	defaultTokenTTL = 24 * time.Hour
	tokenIssuer     = "agrinetwork"
)

// tokenClaims is the JWT body. The account role rides along so the HTTP edge can
// tell staff apart without a directory lookup; order-level roles are never encoded.
type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) issueToken(u User) (string, error) {
	now := s.now()
	claims := tokenClaims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// VerifyToken validates a token and returns the user ID and account role it carries.
// Only HS256 tokens issued by this service are accepted.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return s.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" || claims.UserID != claims.Subject {
		return "", "", fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	if !IsValidRole(claims.Role) {
		return "", "", fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return claims.UserID, claims.Role, nil
}

// IsValidRole reports whether role is a known account role.
func IsValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleLogistics, RoleSupport, RoleAdmin:
		return true
	}
	return false
}
